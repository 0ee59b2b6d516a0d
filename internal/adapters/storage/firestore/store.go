package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/PabloGalante/clara-companion/internal/domain"
)

type Store struct {
	client *firestore.Client
	start  time.Time
}

// NewStore creates a Firestore store.
// Uses the project passed (CLARA_GCP_PROJECT). start is reported as the last
// alert time until the first alert is raised.
func NewStore(ctx context.Context, projectID string, start time.Time) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	return &Store{client: client, start: start}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// ─────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────

func (s *Store) messagesCol() *firestore.CollectionRef {
	return s.client.Collection("messages")
}

func (s *Store) summariesCol() *firestore.CollectionRef {
	return s.client.Collection("summaries")
}

func (s *Store) stateDoc(name string) *firestore.DocumentRef {
	return s.client.Collection("state").Doc(name)
}

// ─────────────────────────────────────────
// Firestore Types
// ─────────────────────────────────────────

type messageDoc struct {
	Content   string    `firestore:"content"`
	Role      string    `firestore:"role"`
	CreatedAt time.Time `firestore:"created_at"`
}

type summaryDoc struct {
	Text         string    `firestore:"text"`
	MessageCount int       `firestore:"message_count"`
	CreatedAt    time.Time `firestore:"created_at"`
}

type modeDoc struct {
	Agent bool `firestore:"agent"`
}

type alertDoc struct {
	LastAlert time.Time `firestore:"last_alert"`
}

// ─────────────────────────────────────────
// MessageStore implementation
// ─────────────────────────────────────────

func (s *Store) AppendMessage(ctx context.Context, msg *domain.Message) error {
	doc := messageDoc{
		Content:   msg.Content,
		Role:      string(msg.Role),
		CreatedAt: msg.Timestamp,
	}

	// Create fails if the id already exists, which keeps ids unique.
	_, err := s.messagesCol().Doc(string(msg.ID)).Create(ctx, doc)
	if err != nil {
		return fmt.Errorf("firestore AppendMessage: %w", err)
	}
	return nil
}

// ListMessages orders by creation time, then by document id. Ids are
// UUIDv7, so the tie-break follows insertion order as well.
func (s *Store) ListMessages(ctx context.Context) ([]*domain.Message, error) {
	q := s.messagesCol().
		OrderBy("created_at", firestore.Asc).
		OrderBy(firestore.DocumentID, firestore.Asc)

	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []*domain.Message
	for {
		snap, err := iter.Next()
		if err != nil {
			if err == iterator.Done {
				break
			}
			return nil, fmt.Errorf("firestore ListMessages: %w", err)
		}

		var doc messageDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode messageDoc: %w", err)
		}

		out = append(out, &domain.Message{
			ID:        domain.MessageID(snap.Ref.ID),
			Content:   doc.Content,
			Role:      domain.Role(doc.Role),
			Timestamp: doc.CreatedAt,
		})
	}
	return out, nil
}

// ─────────────────────────────────────────
// SummaryStore implementation
// ─────────────────────────────────────────

func (s *Store) AppendSummary(ctx context.Context, sum *domain.Summary) error {
	doc := summaryDoc{
		Text:         sum.Text,
		MessageCount: sum.MessageCount,
		CreatedAt:    sum.CreatedAt,
	}

	_, err := s.summariesCol().Doc(string(sum.ID)).Set(ctx, doc)
	if err != nil {
		return fmt.Errorf("firestore AppendSummary: %w", err)
	}
	return nil
}

func (s *Store) ListSummaries(ctx context.Context, limit int) ([]*domain.Summary, error) {
	q := s.summariesCol().OrderBy("created_at", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []*domain.Summary
	for {
		snap, err := iter.Next()
		if err != nil {
			if err == iterator.Done {
				break
			}
			return nil, fmt.Errorf("firestore ListSummaries: %w", err)
		}

		var doc summaryDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode summaryDoc: %w", err)
		}

		out = append(out, &domain.Summary{
			ID:           domain.SummaryID(snap.Ref.ID),
			Text:         doc.Text,
			MessageCount: doc.MessageCount,
			CreatedAt:    doc.CreatedAt,
		})
	}

	// newest-first from the query, oldest-first for callers
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// ─────────────────────────────────────────
// ModeStore implementation
// ─────────────────────────────────────────

func (s *Store) SetMode(ctx context.Context, mode domain.Mode) error {
	_, err := s.stateDoc("mode").Set(ctx, modeDoc{Agent: mode.Agent})
	if err != nil {
		return fmt.Errorf("firestore SetMode: %w", err)
	}
	return nil
}

func (s *Store) GetMode(ctx context.Context) (domain.Mode, error) {
	snap, err := s.stateDoc("mode").Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return domain.Mode{}, nil
		}
		return domain.Mode{}, fmt.Errorf("firestore GetMode: %w", err)
	}

	var doc modeDoc
	if err := snap.DataTo(&doc); err != nil {
		return domain.Mode{}, fmt.Errorf("firestore GetMode decode: %w", err)
	}
	return domain.Mode{Agent: doc.Agent}, nil
}

// ─────────────────────────────────────────
// AlertStore implementation
// ─────────────────────────────────────────

func (s *Store) RaiseAlert(ctx context.Context, at time.Time) (time.Time, error) {
	ref := s.stateDoc("alert")
	stored := at

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}
		if err == nil {
			var doc alertDoc
			if err := snap.DataTo(&doc); err != nil {
				return err
			}
			if !at.After(doc.LastAlert) {
				stored = doc.LastAlert
				return nil
			}
		}
		stored = at
		return tx.Set(ref, alertDoc{LastAlert: at})
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("firestore RaiseAlert: %w", err)
	}
	return stored, nil
}

func (s *Store) LastAlert(ctx context.Context) (time.Time, error) {
	snap, err := s.stateDoc("alert").Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return s.start, nil
		}
		return time.Time{}, fmt.Errorf("firestore LastAlert: %w", err)
	}

	var doc alertDoc
	if err := snap.DataTo(&doc); err != nil {
		return time.Time{}, fmt.Errorf("firestore LastAlert decode: %w", err)
	}
	if doc.LastAlert.Before(s.start) {
		return s.start, nil
	}
	return doc.LastAlert, nil
}
