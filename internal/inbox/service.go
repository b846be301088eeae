// Package inbox composes storage, ingestion, the conversation view and notifications
// into the operations exposed to clients.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/matheus3301/inbox/internal/conversation"
	"github.com/matheus3301/inbox/internal/ingest"
	"github.com/matheus3301/inbox/internal/store"
	"go.uber.org/zap"
)

// ErrInvalidArgument marks requests rejected before touching the store.
var ErrInvalidArgument = errors.New("invalid argument")

const (
	defaultPageSize  = 50
	recentStatsLimit = 10
	localAuthor      = "You"
	unknownContact   = "Unknown User"
)

// SendRequest describes a locally originated message.
type SendRequest struct {
	ConversationID string `json:"wa_id"`
	Body           string `json:"body"`
	DisplayName    string `json:"profile_name,omitempty"`
	Kind           string `json:"type,omitempty"`
}

// Stats is a diagnostic snapshot of the message store.
type Stats struct {
	TotalMessages  int64                     `json:"totalMessages"`
	TotalContacts  int64                     `json:"totalContacts"`
	RecentMessages []store.Message           `json:"recentMessages"`
	Conversations  []store.ConversationCount `json:"messagesByWaId"`
}

// Service implements the inbox operations.
type Service struct {
	db            *store.DB
	engine        *ingest.Engine
	conversations *conversation.Materializer
	sampleDir     string
	logger        *zap.Logger
	now           func() time.Time
}

// NewService creates the inbox service. sampleDir is used by IngestDirectory when the
// caller passes no path.
func NewService(db *store.DB, engine *ingest.Engine, sampleDir string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:            db,
		engine:        engine,
		conversations: conversation.NewMaterializer(db),
		sampleDir:     sampleDir,
		logger:        logger,
		now:           time.Now,
	}
}

// ListConversations recomputes the conversation list.
func (s *Service) ListConversations(ctx context.Context) ([]conversation.Summary, error) {
	return s.conversations.List(ctx)
}

// ListMessages returns one page of a conversation ordered oldest to newest. Page 1 holds
// the newest pageSize messages.
func (s *Service) ListMessages(ctx context.Context, conversationID string, page, pageSize int) ([]store.Message, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	msgs, err := s.db.ListMessages(ctx, conversationID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	if msgs == nil {
		msgs = []store.Message{}
	}
	return msgs, nil
}

// SendMessage stores an outgoing message and announces it. Nothing is delivered to an
// external network.
func (s *Service) SendMessage(ctx context.Context, req SendRequest) (*store.Message, error) {
	if req.ConversationID == "" {
		return nil, fmt.Errorf("%w: wa_id is required", ErrInvalidArgument)
	}
	kind, err := store.ParseKind(req.Kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	now := s.now()
	id := newMessageID(now)
	author := req.DisplayName
	if author == "" {
		author = localAuthor
	}
	msg := &store.Message{
		MsgID:          id,
		MetaMsgID:      id,
		ConversationID: req.ConversationID,
		AuthorName:     author,
		Body:           req.Body,
		Timestamp:      now.UnixMilli(),
		Kind:           kind,
		Status:         store.StatusSent,
		Direction:      store.DirectionOutgoing,
	}
	if err := s.db.InsertMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	contactName := req.DisplayName
	if contactName == "" {
		contactName = unknownContact
	}
	if err := s.db.UpsertContact(ctx, &store.Contact{
		ConversationID: req.ConversationID,
		DisplayName:    contactName,
		LastSeenAt:     now.UnixMilli(),
	}); err != nil {
		// The message is stored; a missing contact row only costs the display name.
		s.logger.Warn("contact upsert failed", zap.Error(err), zap.String("wa_id", req.ConversationID))
	}

	s.engine.PublishMessage(msg)
	s.logger.Info("message sent", zap.String("msg_id", id), zap.String("conversation", req.ConversationID))
	return msg, nil
}

// SetMessageStatus updates the message whose id or secondary id equals id. It returns
// nil without error when nothing matches.
func (s *Service) SetMessageStatus(ctx context.Context, id, status string) (*store.Message, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: message id is required", ErrInvalidArgument)
	}
	st, err := store.ParseStatus(status)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	msg, err := s.db.SetMessageStatus(ctx, id, st)
	if err != nil {
		return nil, fmt.Errorf("set message status: %w", err)
	}
	if msg == nil {
		return nil, nil
	}
	s.engine.PublishStatus(msg.ConversationID, id, st)
	return msg, nil
}

// SearchMessages finds messages containing query, optionally within one conversation.
func (s *Service) SearchMessages(ctx context.Context, query, conversationID string, limit int) ([]store.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: search query is required", ErrInvalidArgument)
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	res, err := s.db.SearchMessages(ctx, query, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	return res, nil
}

// IngestPayload runs one raw webhook payload through the ingestion engine.
func (s *Service) IngestPayload(ctx context.Context, raw []byte) (ingest.Result, error) {
	res, err := s.engine.IngestPayload(ctx, raw)
	if errors.Is(err, ingest.ErrMalformedPayload) {
		return res, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return res, err
}

// IngestDirectory ingests every JSON file in path, or in the configured sample directory
// when path is empty.
func (s *Service) IngestDirectory(ctx context.Context, path string) (ingest.DirResult, error) {
	if path == "" {
		path = s.sampleDir
	}
	if path == "" {
		return ingest.DirResult{}, fmt.Errorf("%w: no directory given and no sample directory configured", ErrInvalidArgument)
	}
	return s.engine.IngestDirectory(ctx, path)
}

// IngestSampleDir ingests the configured sample directory, or sub beneath it. sub may
// be relative to the sample directory or absolute; paths resolving outside it are
// rejected, so remote callers cannot point the daemon at arbitrary directories.
func (s *Service) IngestSampleDir(ctx context.Context, sub string) (ingest.DirResult, error) {
	if s.sampleDir == "" {
		return ingest.DirResult{}, fmt.Errorf("%w: no sample directory configured", ErrInvalidArgument)
	}
	root, err := filepath.Abs(s.sampleDir)
	if err != nil {
		return ingest.DirResult{}, fmt.Errorf("resolve sample directory: %w", err)
	}
	target := root
	switch {
	case sub == "":
	case filepath.IsAbs(sub):
		target = filepath.Clean(sub)
	default:
		target = filepath.Join(root, sub)
	}
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return ingest.DirResult{}, fmt.Errorf("%w: %s is outside the sample directory", ErrInvalidArgument, sub)
	}
	return s.engine.IngestDirectory(ctx, target)
}

// Stats reports totals, the most recent messages and per-conversation counts.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	total, err := s.db.MessageCount(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}
	contacts, err := s.db.ContactCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("count contacts: %w", err)
	}
	recent, err := s.db.RecentMessages(ctx, recentStatsLimit)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	counts, err := s.db.ConversationCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("conversation counts: %w", err)
	}
	if recent == nil {
		recent = []store.Message{}
	}
	return &Stats{
		TotalMessages:  total,
		TotalContacts:  contacts,
		RecentMessages: recent,
		Conversations:  counts,
	}, nil
}
