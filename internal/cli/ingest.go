package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/document"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/ingest/publisher"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/source"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/proto"
)

// newProducer is replaced in tests.
var newProducer = func(brokers []string, topic string) kafka.Publisher {
	return kafka.NewProducer(config.KafkaConfig{Brokers: brokers}, topic)
}

func newIngestCmd(a *app) *cobra.Command {
	var (
		brokers []string
		topic   string
	)
	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Index log files",
		Long: `Reads every line of the given JSON-lines files and sends them to the
search process as one batch. The batch replaces the searchable corpus.

With --brokers the batch is published to the ingest topic instead and
indexed by the search process's consumer.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tailer := source.NewLogTailer()
			for _, path := range args {
				if _, err := tailer.Tail(path); err != nil {
					return err
				}
			}
			docs := tailer.Documents()

			if len(brokers) > 0 {
				if len(docs) == 0 {
					return errNoDocuments
				}
				pub := publisher.New(newProducer(brokers, topic))
				defer pub.Close()
				receipt, err := pub.Publish(cmd.Context(), docs)
				if err != nil {
					return err
				}
				cmd.Printf("Published %d documents as batch %s (content %s)\n", receipt.Documents, receipt.BatchID, receipt.ContentHash)
				return nil
			}

			client, err := a.searchClient()
			if err != nil {
				return err
			}
			resp, err := sendCorpus(cmd.Context(), client, docs)
			if err != nil {
				return err
			}
			cmd.Printf("Indexed %d documents (%d terms) as generation %d\n", resp.Documents, resp.Terms, resp.Generation)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&brokers, "brokers", nil, "publish to these Kafka brokers instead of calling the search process")
	cmd.Flags().StringVar(&topic, "topic", "document-ingest", "ingest topic used with --brokers")
	return cmd
}

var errNoDocuments = errors.New("no log lines to index")

func sendCorpus(ctx context.Context, client SearchClient, docs []document.Document) (proto.IndexResponse, error) {
	if len(docs) == 0 {
		return proto.IndexResponse{}, errNoDocuments
	}
	wire := make([]proto.Document, len(docs))
	for i, d := range docs {
		wire[i] = proto.Document{ID: d.ID, Fields: d.Fields}
	}
	resp, err := client.Index(ctx, wire)
	if err != nil {
		return proto.IndexResponse{}, fmt.Errorf("indexing %d documents: %w", len(docs), err)
	}
	return resp, nil
}
