package connectors

import (
	"log/slog"

	"specmatch/internal/storage"
)

type FetchService struct {
	db        *storage.DB
	connector MailConnector
	store     *MailStoreService
	log       *slog.Logger
}

type FetchResult struct {
	Fetched int
	Stored  int
}

func NewFetchService(db *storage.DB, rawMailDir string, connector MailConnector, log *slog.Logger) *FetchService {
	if log == nil {
		log = slog.Default()
	}
	return &FetchService{
		db:        db,
		connector: connector,
		store:     NewMailStoreService(db, rawMailDir),
		log:       log,
	}
}

func (s *FetchService) FetchAndStore(label string, max int) (FetchResult, error) {
	messages, err := s.connector.FetchInbox(label, max)
	if err != nil {
		return FetchResult{}, err
	}

	stored := 0
	for _, msg := range messages {
		row, err := s.store.Store(msg)
		if err != nil {
			return FetchResult{Fetched: len(messages), Stored: stored}, err
		}
		stored++
		s.log.Debug("message stored", "provider", row.Provider, "messageId", row.MessageID, "hash", row.Hash)
	}

	return FetchResult{Fetched: len(messages), Stored: stored}, nil
}
