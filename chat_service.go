package chatbridge

import (
	"context"
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/coregx/chatbridge/model"
	"github.com/coregx/chatbridge/retry"
)

// MessagePublisher publishes payloads onto the durable log. *Producer implements it.
type MessagePublisher interface {
	Publish(ctx context.Context, req PublishRequest) (*PublishResult, error)
}

// ChatService handles the chat commands that feed the bridge: it persists
// threads and messages, and publishes every new message under its thread's
// routing key so attached streams receive it.
//
// Thread safety: Safe for concurrent use.
type ChatService struct {
	threads      ThreadRepository
	messages     MessageRepository
	publisher    MessagePublisher
	publishRetry retry.Strategy
	logger       Logger
}

// ChatServiceOption is a function that configures a ChatService.
type ChatServiceOption func(*ChatService) error

// NewChatService creates a new ChatService with the provided options.
//
// Required options:
//   - WithChatRepositories: thread and message repositories
//   - WithChatProducer: publisher for new messages
//   - WithChatLogger: logger instance
//
// Optional options:
//   - WithPublishRetry: retry strategy for refused publishes (default retry.PublishStrategy())
func NewChatService(opts ...ChatServiceOption) (*ChatService, error) {
	s := &ChatService{
		publishRetry: retry.PublishStrategy(),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply chat service option", err)
		}
	}

	if s.threads == nil {
		return nil, NewError(ErrCodeConfiguration, "ThreadRepository is required (use WithChatRepositories)")
	}
	if s.messages == nil {
		return nil, NewError(ErrCodeConfiguration, "MessageRepository is required (use WithChatRepositories)")
	}
	if s.publisher == nil {
		return nil, NewError(ErrCodeConfiguration, "MessagePublisher is required (use WithChatProducer)")
	}
	if s.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required (use WithChatLogger)")
	}

	return s, nil
}

// WithChatRepositories sets the required repository dependencies.
func WithChatRepositories(threads ThreadRepository, messages MessageRepository) ChatServiceOption {
	return func(s *ChatService) error {
		if threads == nil {
			return fmt.Errorf("threadRepo cannot be nil")
		}
		if messages == nil {
			return fmt.Errorf("messageRepo cannot be nil")
		}
		s.threads = threads
		s.messages = messages
		return nil
	}
}

// WithChatProducer sets the publisher new messages are published with.
func WithChatProducer(publisher MessagePublisher) ChatServiceOption {
	return func(s *ChatService) error {
		if publisher == nil {
			return fmt.Errorf("publisher cannot be nil")
		}
		s.publisher = publisher
		return nil
	}
}

// WithChatLogger sets the logger instance.
func WithChatLogger(logger Logger) ChatServiceOption {
	return func(s *ChatService) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		s.logger = logger
		return nil
	}
}

// WithPublishRetry sets how publishes refused by the log client are retried.
func WithPublishRetry(strategy retry.Strategy) ChatServiceOption {
	return func(s *ChatService) error {
		s.publishRetry = strategy
		return nil
	}
}

var requiredUUID = validation.By(func(value interface{}) error {
	if id, _ := value.(uuid.UUID); id == uuid.Nil {
		return errors.New("cannot be blank")
	}
	return nil
})

// CreateThreadRequest represents a request to open a new chat thread.
type CreateThreadRequest struct {
	UserID     uuid.UUID `json:"userID"`
	ThreadName string    `json:"threadName"`
}

// Validate implements validation.Validatable.
func (r CreateThreadRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.UserID, requiredUUID),
		validation.Field(&r.ThreadName, validation.Required, validation.Length(1, 255)),
	)
}

// PostMessageRequest represents a request to add a message to a thread.
// ChatRole defaults to "user".
type PostMessageRequest struct {
	UserID   uuid.UUID      `json:"userID"`
	ThreadID uuid.UUID      `json:"threadID"`
	ChatRole model.ChatRole `json:"chatRole"`
	Message  string         `json:"chatMessage"`
}

// Validate implements validation.Validatable.
func (r PostMessageRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.UserID, requiredUUID),
		validation.Field(&r.ThreadID, requiredUUID),
		validation.Field(&r.ChatRole, validation.In(model.ChatRoleUser, model.ChatRoleAssistant, model.ChatRoleSystem)),
		validation.Field(&r.Message, validation.Required, validation.Length(1, 4000)),
	)
}

// CreateThread opens a new thread for the user.
func (s *ChatService) CreateThread(ctx context.Context, req CreateThreadRequest) (*model.ChatThread, error) {
	if err := req.Validate(); err != nil {
		return nil, NewErrorWithCause(ErrCodeValidation, "invalid thread request", err)
	}

	thread := model.NewChatThread(req.UserID, req.ThreadName)
	saved, err := s.threads.Save(ctx, &thread)
	if err != nil {
		return nil, NewErrorWithCause(ErrCodeDatabase, "failed to save thread", err)
	}

	s.logger.Infof("Thread created: id=%s, user=%s", saved.ID, saved.UserID)
	return saved, nil
}

// ListThreads returns the user's threads, newest first. A user without threads
// gets an empty slice.
func (s *ChatService) ListThreads(ctx context.Context, userID uuid.UUID) ([]model.ChatThread, error) {
	if userID == uuid.Nil {
		return nil, NewError(ErrCodeValidation, "user ID is required")
	}

	threads, err := s.threads.FindByUser(ctx, userID)
	if err != nil {
		if IsNoData(err) {
			return []model.ChatThread{}, nil
		}
		return nil, NewErrorWithCause(ErrCodeDatabase, "failed to load threads", err)
	}
	return threads, nil
}

// ListMessages returns up to limit messages of a thread owned by the user,
// oldest first. A limit <= 0 returns all of them.
func (s *ChatService) ListMessages(ctx context.Context, userID, threadID uuid.UUID, limit int) ([]model.ChatMessage, error) {
	thread, err := s.ownedThread(ctx, userID, threadID)
	if err != nil {
		return nil, err
	}

	messages, err := s.messages.FindByThread(ctx, thread.ID, limit)
	if err != nil {
		if IsNoData(err) {
			return []model.ChatMessage{}, nil
		}
		return nil, NewErrorWithCause(ErrCodeDatabase, "failed to load messages", err)
	}
	return messages, nil
}

// PostMessage stores a message in a thread owned by the user and publishes it
// under the thread's routing key.
//
// Publishes refused by the log client are retried with the publish strategy.
// If publishing still fails the request fails, although the message stays stored
// and is returned by ListMessages.
func (s *ChatService) PostMessage(ctx context.Context, req PostMessageRequest) (*model.ChatMessage, error) {
	if req.ChatRole == "" {
		req.ChatRole = model.ChatRoleUser
	}
	if err := req.Validate(); err != nil {
		return nil, NewErrorWithCause(ErrCodeValidation, "invalid message request", err)
	}

	thread, err := s.ownedThread(ctx, req.UserID, req.ThreadID)
	if err != nil {
		return nil, err
	}

	msg := model.NewChatMessage(thread, req.ChatRole, req.Message)
	saved, err := s.messages.Save(ctx, &msg)
	if err != nil {
		return nil, NewErrorWithCause(ErrCodeDatabase, "failed to save message", err)
	}

	event := model.NewChatEvent(*saved)
	err = s.publishRetry.Do(ctx, IsRetryable, func(ctx context.Context) error {
		_, err := s.publisher.Publish(ctx, PublishRequest{
			RoutingKey: event.RoutingKey(),
			Payload:    event,
		})
		return err
	})
	if err != nil {
		s.logger.Errorf("Message %s stored but not published: %v", saved.ID, err)
		return nil, err
	}

	s.logger.Infof("Message posted: id=%s, thread=%s, role=%s", saved.ID, thread.ID, saved.ChatRole)
	return saved, nil
}

func (s *ChatService) ownedThread(ctx context.Context, userID, threadID uuid.UUID) (model.ChatThread, error) {
	if userID == uuid.Nil || threadID == uuid.Nil {
		return model.ChatThread{}, NewError(ErrCodeValidation, "user ID and thread ID are required")
	}

	thread, err := s.threads.Load(ctx, threadID)
	if err != nil {
		if IsNoData(err) {
			return model.ChatThread{}, NewErrorWithCause(ErrCodeNoData, "thread not found", err)
		}
		return model.ChatThread{}, NewErrorWithCause(ErrCodeDatabase, "failed to load thread", err)
	}
	if !thread.OwnedBy(userID) {
		return model.ChatThread{}, NewError(ErrCodeNoData, "thread not found")
	}
	return thread, nil
}
