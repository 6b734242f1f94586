package db

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/example/subtracker/internal/models"
)

// entriesCollection is the per-user subcollection holding subscription documents:
// {basePath}/{userId}/entries/{subscriptionId}.
const entriesCollection = "entries"

// NotesCipher encrypts the free-text notes field at rest.
type NotesCipher interface {
	Encrypt(plainText string) (string, error)
	Decrypt(cipherText string) (string, error)
}

// subscriptionDocument is the stored shape of a subscription.
type subscriptionDocument struct {
	ServiceName    string    `firestore:"serviceName"`
	Category       string    `firestore:"category"`
	Price          float64   `firestore:"price"`
	BillingCycle   string    `firestore:"billingCycle"`
	RenewalDate    int64     `firestore:"renewalDate"`
	PaymentMethod  string    `firestore:"paymentMethod"`
	Notes          string    `firestore:"notes"`
	NotesEncrypted bool      `firestore:"notesEncrypted"`
	IsActive       bool      `firestore:"isActive"`
	CreatedAt      time.Time `firestore:"createdAt"`
}

// FirestoreSubscriptionStore implements SubscriptionStore and RenewalFinder on Firestore.
type FirestoreSubscriptionStore struct {
	client   *firestore.Client
	basePath string
	notes    NotesCipher
	logger   *zap.Logger
}

// NewFirestoreSubscriptionStore creates a store rooted at basePath.
// notes may be nil, in which case notes are stored in plain text.
func NewFirestoreSubscriptionStore(client *firestore.Client, basePath string, notes NotesCipher, logger *zap.Logger) *FirestoreSubscriptionStore {
	if client == nil {
		panic("Firestore client is not initialized for FirestoreSubscriptionStore")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FirestoreSubscriptionStore{client: client, basePath: basePath, notes: notes, logger: logger}
}

func (s *FirestoreSubscriptionStore) entries(userID string) *firestore.CollectionRef {
	return s.client.Collection(s.basePath).Doc(userID).Collection(entriesCollection)
}

// Create writes a new document with a server-assigned createdAt.
func (s *FirestoreSubscriptionStore) Create(ctx context.Context, userID string, fields models.SubscriptionFields) (string, error) {
	data, err := s.encode(fields)
	if err != nil {
		return "", err
	}
	data["createdAt"] = firestore.ServerTimestamp

	docRef := s.entries(userID).NewDoc()
	if _, err := docRef.Create(ctx, data); err != nil {
		return "", fmt.Errorf("failed to create subscription for user '%s': %w", userID, err)
	}
	return docRef.ID, nil
}

// Write merges every mutable field into the document, leaving createdAt alone.
// A missing document is created without createdAt.
func (s *FirestoreSubscriptionStore) Write(ctx context.Context, userID, id string, fields models.SubscriptionFields) error {
	data, err := s.encode(fields)
	if err != nil {
		return err
	}
	if _, err := s.entries(userID).Doc(id).Set(ctx, data, firestore.MergeAll); err != nil {
		return fmt.Errorf("failed to write subscription '%s': %w", id, err)
	}
	return nil
}

func (s *FirestoreSubscriptionStore) WriteActive(ctx context.Context, userID, id string, isActive bool) error {
	_, err := s.entries(userID).Doc(id).Update(ctx, []firestore.Update{{Path: "isActive", Value: isActive}})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("subscription '%s' not found: %w", id, ErrNotFound)
		}
		return fmt.Errorf("failed to update status of subscription '%s': %w", id, err)
	}
	return nil
}

func (s *FirestoreSubscriptionStore) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.entries(userID).Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete subscription '%s': %w", id, err)
	}
	return nil
}

func (s *FirestoreSubscriptionStore) ReadOnce(ctx context.Context, userID, id string) (*models.Subscription, error) {
	docSnap, err := s.entries(userID).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("subscription '%s' not found: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get subscription '%s': %w", id, err)
	}
	return s.decode(docSnap)
}

// Subscribe listens to the user's whole collection. The listener outlives
// ctx's cancellation; it stops only through the returned Unsubscribe.
func (s *FirestoreSubscriptionStore) Subscribe(ctx context.Context, userID string, onChange func([]models.Subscription), onError func(error)) (Unsubscribe, error) {
	listenCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	it := s.entries(userID).Snapshots(listenCtx)

	var (
		mu      sync.Mutex
		stopped bool
		done    = make(chan struct{})
	)
	go func() {
		defer close(done)
		defer it.Stop()
		for {
			qs, err := it.Next()

			mu.Lock()
			if stopped {
				mu.Unlock()
				return
			}
			if err != nil {
				if !errors.Is(err, iterator.Done) && status.Code(err) != codes.Canceled {
					onError(fmt.Errorf("subscription listener for user '%s' failed: %w", userID, err))
				}
				mu.Unlock()
				return
			}
			subs, decodeErr := s.decodeQuery(qs)
			if decodeErr != nil {
				onError(decodeErr)
			} else {
				onChange(subs)
			}
			mu.Unlock()
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			mu.Lock()
			stopped = true
			mu.Unlock()
			cancel()
			<-done
		})
	}, nil
}

// FindRenewals runs a collection-group query over every user's entries.
// It needs a composite index on (isActive, renewalDate).
func (s *FirestoreSubscriptionStore) FindRenewals(ctx context.Context, from, to time.Time) ([]models.DueRenewal, error) {
	query := s.client.CollectionGroup(entriesCollection).
		Where("isActive", "==", true).
		Where("renewalDate", ">=", from.UnixMilli()).
		Where("renewalDate", "<", to.UnixMilli()).
		OrderBy("renewalDate", firestore.Asc)

	iter := query.Documents(ctx)
	defer iter.Stop()

	var due []models.DueRenewal
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate renewals: %w", err)
		}
		userDoc := doc.Ref.Parent.Parent
		if userDoc == nil || userDoc.Parent == nil || userDoc.Parent.ID != s.basePath {
			continue
		}
		sub, err := s.decode(doc)
		if err != nil {
			s.logger.Warn("Skipping undecodable subscription during renewal scan",
				zap.String("path", doc.Ref.Path), zap.Error(err))
			continue
		}
		due = append(due, models.DueRenewal{UserID: userDoc.ID, Subscription: *sub})
	}
	return due, nil
}

func (s *FirestoreSubscriptionStore) decodeQuery(qs *firestore.QuerySnapshot) ([]models.Subscription, error) {
	docs, err := qs.Documents.GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read subscription snapshot: %w", err)
	}
	subs := make([]models.Subscription, 0, len(docs))
	for _, doc := range docs {
		sub, err := s.decode(doc)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, nil
}

func (s *FirestoreSubscriptionStore) encode(fields models.SubscriptionFields) (map[string]interface{}, error) {
	notes, encrypted := fields.Notes, false
	if s.notes != nil && notes != "" {
		enc, err := s.notes.Encrypt(notes)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt notes: %w", err)
		}
		notes, encrypted = enc, true
	}
	return map[string]interface{}{
		"serviceName":    fields.ServiceName,
		"category":       string(fields.Category),
		"price":          fields.Price,
		"billingCycle":   string(fields.BillingCycle),
		"renewalDate":    fields.RenewalDate,
		"paymentMethod":  string(fields.PaymentMethod),
		"notes":          notes,
		"notesEncrypted": encrypted,
		"isActive":       fields.IsActive,
	}, nil
}

func (s *FirestoreSubscriptionStore) decode(docSnap *firestore.DocumentSnapshot) (*models.Subscription, error) {
	var doc subscriptionDocument
	if err := docSnap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode subscription '%s': %w", docSnap.Ref.ID, err)
	}

	notes := doc.Notes
	if doc.NotesEncrypted && notes != "" {
		if s.notes == nil {
			return nil, fmt.Errorf("subscription '%s' has encrypted notes but no encryption key is configured", docSnap.Ref.ID)
		}
		plain, err := s.notes.Decrypt(notes)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt notes of subscription '%s': %w", docSnap.Ref.ID, err)
		}
		notes = plain
	}

	var createdAt int64
	if !doc.CreatedAt.IsZero() {
		createdAt = doc.CreatedAt.UnixMilli()
	}
	return &models.Subscription{
		ID: docSnap.Ref.ID,
		SubscriptionFields: models.SubscriptionFields{
			ServiceName:   doc.ServiceName,
			Category:      models.Category(doc.Category),
			Price:         doc.Price,
			BillingCycle:  models.BillingCycle(doc.BillingCycle),
			RenewalDate:   doc.RenewalDate,
			PaymentMethod: models.PaymentMethod(doc.PaymentMethod),
			Notes:         notes,
			IsActive:      doc.IsActive,
		},
		CreatedAt: createdAt,
	}, nil
}
