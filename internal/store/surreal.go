package store

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/contrib/rews"
	"github.com/surrealdb/surrealdb.go/pkg/connection"
	"github.com/surrealdb/surrealdb.go/pkg/connection/gorillaws"
	"github.com/surrealdb/surrealdb.go/pkg/logger"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
	"github.com/surrealdb/surrealdb.go/surrealcbor"

	"github.com/chatvault/chatvault/internal/errs"
	"github.com/chatvault/chatvault/internal/models"
)

func init() {
	// Force HTTP/1.1 for WSS connections to prevent HTTP/2 ALPN negotiation.
	// WebSocket upgrade requires HTTP/1.1 semantics which fail under HTTP/2.
	gorillaws.DefaultDialer.TLSClientConfig = &tls.Config{
		NextProtos: []string{"http/1.1"},
	}
}

// SurrealConfig holds SurrealDB connection configuration.
type SurrealConfig struct {
	URL       string
	Namespace string
	Database  string
	Username  string
	Password  string
	AuthLevel string // "root" or "database"
}

// Surreal is a Store backed by SurrealDB over an auto-reconnecting
// WebSocket connection.
type Surreal struct {
	conn   *rews.Connection[*gorillaws.Connection]
	db     *surrealdb.DB
	cfg    SurrealConfig
	logger logger.Logger
}

// conversationSchema initializes the conversation table. Messages are kept
// inline as a flexible array so an upsert replaces the merged transcript
// in one write.
const conversationSchema = `
    DEFINE TABLE IF NOT EXISTS conversation SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS canonical_id ON conversation TYPE string;
    DEFINE FIELD IF NOT EXISTS provider ON conversation TYPE string;
    DEFINE FIELD IF NOT EXISTS native_id ON conversation TYPE string;
    DEFINE FIELD IF NOT EXISTS title ON conversation TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS created_at ON conversation TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated_at ON conversation TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS messages ON conversation FLEXIBLE TYPE array DEFAULT [];

    DEFINE INDEX IF NOT EXISTS conversation_canonical ON conversation FIELDS canonical_id UNIQUE;
    DEFINE INDEX IF NOT EXISTS conversation_provider ON conversation FIELDS provider;
`

// NewSurreal connects to SurrealDB and prepares the conversation schema.
func NewSurreal(ctx context.Context, cfg SurrealConfig, log *slog.Logger) (*Surreal, error) {
	var sdkLogger logger.Logger
	if log != nil {
		sdkLogger = logger.New(log.Handler())
	} else {
		sdkLogger = logger.New(slog.Default().Handler())
	}

	// surrealcbor handles SurrealDB's custom CBOR tags
	codec := surrealcbor.New()

	// gorillaws requires the base URL without the /rpc suffix (it adds it)
	baseURL := strings.TrimSuffix(cfg.URL, "/rpc")

	conn := rews.New(
		func(ctx context.Context) (*gorillaws.Connection, error) {
			ws := gorillaws.New(&connection.Config{
				BaseURL:     baseURL,
				Marshaler:   codec,
				Unmarshaler: codec,
				Logger:      sdkLogger,
			})
			return ws, nil
		},
		5*time.Second,
		codec,
		sdkLogger,
	)

	retryer := rews.NewExponentialBackoffRetryer()
	retryer.InitialDelay = 1 * time.Second
	retryer.MaxDelay = 30 * time.Second
	retryer.Multiplier = 2.0
	retryer.MaxRetries = 10
	conn.Retryer = retryer

	sdkLogger.Info("connecting to SurrealDB", "url", cfg.URL)
	if err := conn.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	db, err := surrealdb.FromConnection(ctx, conn)
	if err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("from connection: %w", err)
	}

	if cfg.AuthLevel == "database" {
		_, err = db.SignIn(ctx, surrealdb.Auth{
			Namespace: cfg.Namespace,
			Database:  cfg.Database,
			Username:  cfg.Username,
			Password:  cfg.Password,
		})
	} else {
		_, err = db.SignIn(ctx, surrealdb.Auth{
			Username: cfg.Username,
			Password: cfg.Password,
		})
	}
	if err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("signin: %w", err)
	}

	if err := db.Use(ctx, cfg.Namespace, cfg.Database); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("use: %w", err)
	}

	s := &Surreal{conn: conn, db: db, cfg: cfg, logger: sdkLogger}
	if err := s.initSchema(ctx); err != nil {
		_ = conn.Close(ctx)
		return nil, err
	}

	sdkLogger.Info("SurrealDB conversation store ready")
	return s, nil
}

// Close closes the SurrealDB connection.
func (s *Surreal) Close(ctx context.Context) error {
	s.logger.Info("closing SurrealDB connection")
	return s.conn.Close(ctx)
}

func (s *Surreal) initSchema(ctx context.Context) error {
	if _, err := surrealdb.Query[any](ctx, s.db, conversationSchema, nil); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// conversationRecord is the SurrealDB document shape.
type conversationRecord struct {
	ID          surrealmodels.RecordID `json:"id"`
	CanonicalID string                 `json:"canonical_id"`
	Provider    string                 `json:"provider"`
	NativeID    string                 `json:"native_id"`
	Title       string                 `json:"title"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	Messages    []models.Message       `json:"messages"`
}

func (r conversationRecord) toModel() models.Conversation {
	return models.Conversation{
		ID:        r.CanonicalID,
		Provider:  r.Provider,
		NativeID:  r.NativeID,
		Title:     r.Title,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
		Messages:  r.Messages,
	}
}

// UpsertConversation inserts or merges a conversation. The merge runs in Go
// against the current record; the unique canonical_id index guarantees one
// record per (provider, native id) even under concurrent writers, in which
// case the losing writer retries once.
func (s *Surreal) UpsertConversation(ctx context.Context, conv models.Conversation) (UpsertResult, error) {
	for attempt := 0; ; attempt++ {
		res, err := s.tryUpsert(ctx, conv)
		if err != nil && attempt == 0 && errors.Is(err, errConflict) {
			continue
		}
		return res, err
	}
}

var errConflict = errors.New("conversation upsert conflict")

func (s *Surreal) tryUpsert(ctx context.Context, conv models.Conversation) (UpsertResult, error) {
	existing, err := s.fetch(ctx, conv.ID)
	if err != nil && !errs.IsKind(err, errs.KindNotFound) {
		return UpsertResult{}, err
	}

	record := conversationRecord{
		CanonicalID: conv.ID,
		Provider:    conv.Provider,
		NativeID:    conv.NativeID,
		Title:       conv.Title,
		CreatedAt:   conv.CreatedAt,
		UpdatedAt:   conv.UpdatedAt,
		Messages:    conv.Messages,
	}
	result := UpsertResult{Created: existing == nil, NewMessages: len(conv.Messages)}

	if existing != nil {
		merged, added := mergeMessages(existing.Messages, conv.Messages)
		record.Messages = merged
		record.Title = conv.Title
		if record.Title == "" {
			record.Title = existing.Title
		}
		if existing.UpdatedAt.After(record.UpdatedAt) {
			record.UpdatedAt = existing.UpdatedAt
		}
		if !existing.CreatedAt.IsZero() && (record.CreatedAt.IsZero() || existing.CreatedAt.Before(record.CreatedAt)) {
			record.CreatedAt = existing.CreatedAt
		}
		result.NewMessages = added
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = record.CreatedAt
	}

	_, err = surrealdb.Query[any](ctx, s.db, `
		UPSERT type::thing('conversation', $rid) CONTENT {
			canonical_id: $record.canonical_id,
			provider: $record.provider,
			native_id: $record.native_id,
			title: $record.title,
			created_at: <datetime>$record.created_at,
			updated_at: <datetime>$record.updated_at,
			messages: $record.messages
		}
	`, map[string]any{
		"rid":    recordKey(conv.ID),
		"record": record,
	})
	if err != nil {
		if strings.Contains(err.Error(), "already exists") {
			return UpsertResult{}, errConflict
		}
		return UpsertResult{}, wrapQueryError(err)
	}

	return result, nil
}

// GetConversation fetches one conversation by canonical id.
func (s *Surreal) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	rec, err := s.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	conv := rec.toModel()
	return &conv, nil
}

func (s *Surreal) fetch(ctx context.Context, id string) (*conversationRecord, error) {
	results, err := surrealdb.Query[[]conversationRecord](ctx, s.db, `
		SELECT * FROM type::thing('conversation', $rid)
	`, map[string]any{"rid": recordKey(id)})
	if err != nil {
		return nil, wrapQueryError(err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, errs.Newf(errs.KindNotFound, "conversation %q not found", id)
	}
	return &(*results)[0].Result[0], nil
}

// ListConversations returns a filtered page ordered by updated_at descending.
func (s *Surreal) ListConversations(ctx context.Context, f Filter) (*Page, error) {
	where := "WHERE true"
	vars := map[string]any{
		"limit":  50,
		"offset": max(f.Offset, 0),
	}
	if f.Limit > 0 {
		vars["limit"] = f.Limit
	}
	if f.Provider != "" {
		where += " AND provider = $provider"
		vars["provider"] = f.Provider
	}
	if f.TitleContains != "" {
		where += " AND string::lowercase(title) CONTAINS $title"
		vars["title"] = strings.ToLower(f.TitleContains)
	}

	sql := fmt.Sprintf(`
		SELECT * FROM conversation %s ORDER BY updated_at DESC LIMIT $limit START $offset
	`, where)
	results, err := surrealdb.Query[[]conversationRecord](ctx, s.db, sql, vars)
	if err != nil {
		return nil, wrapQueryError(err)
	}

	countSQL := fmt.Sprintf(`SELECT count() AS total FROM conversation %s GROUP ALL`, where)
	counts, err := surrealdb.Query[[]struct {
		Total int `json:"total"`
	}](ctx, s.db, countSQL, vars)
	if err != nil {
		return nil, wrapQueryError(err)
	}

	page := &Page{}
	if results != nil && len(*results) > 0 {
		for _, rec := range (*results)[0].Result {
			page.Conversations = append(page.Conversations, rec.toModel())
		}
	}
	if counts != nil && len(*counts) > 0 && len((*counts)[0].Result) > 0 {
		page.Total = (*counts)[0].Result[0].Total
	}
	return page, nil
}

// CountConversations returns the total number of stored conversations.
func (s *Surreal) CountConversations(ctx context.Context) (int, error) {
	results, err := surrealdb.Query[[]struct {
		Total int `json:"total"`
	}](ctx, s.db, `SELECT count() AS total FROM conversation GROUP ALL`, nil)
	if err != nil {
		return 0, wrapQueryError(err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return 0, nil
	}
	return (*results)[0].Result[0].Total, nil
}

// WipeData deletes all conversations while preserving schema. Testing only.
func (s *Surreal) WipeData(ctx context.Context) error {
	s.logger.Warn("wiping conversation store")
	if _, err := surrealdb.Query[any](ctx, s.db, "DELETE conversation", nil); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}

// recordKey makes a canonical id safe as a SurrealDB record id part.
func recordKey(canonicalID string) string {
	return strings.NewReplacer(":", "_", "/", "_").Replace(canonicalID)
}

// wrapQueryError inspects a SurrealDB error and maps known query failures
// onto the orchestrator taxonomy. Unknown errors pass through unchanged.
func wrapQueryError(err error) error {
	if err == nil {
		return nil
	}
	var queryErr *surrealdb.QueryError
	if errors.As(err, &queryErr) {
		if strings.Contains(queryErr.Message, "Transaction conflict") {
			return errs.Wrap(errs.KindProviderUnavailable, "store transaction conflict", err)
		}
	}
	return err
}
