// Package relay turns platform updates into inference requests and replies.
//
// Each text message is appended to the sender's transcript, the whole
// transcript is parsed and sent to the inference server, and the reply is
// appended and delivered. Inference failures become ordinary assistant
// replies; any other failure is answered with a generic hint and never
// propagates to the poller.
package relay

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	cmdpkg "github.com/stupiduntilnot/lmrelay/internal/commander"
	ctxpkg "github.com/stupiduntilnot/lmrelay/internal/context"
	"github.com/stupiduntilnot/lmrelay/internal/db"
	"github.com/stupiduntilnot/lmrelay/internal/metrics"
	modelpkg "github.com/stupiduntilnot/lmrelay/internal/model"
)

// Options wires a Handler to its collaborators. Assembler, Recorder and
// Metrics may be nil. BotUsername is the bot's own @name; when set, commands
// addressed to another bot ("/clear@other_bot") are ignored.
type Options struct {
	Store        ctxpkg.Store
	Assembler    ctxpkg.Assembler
	Provider     modelpkg.Provider
	Commander    cmdpkg.Commander
	SystemPrompt string
	BotUsername  string
	Recorder     db.Recorder
	Metrics      *metrics.Metrics
	Logger       zerolog.Logger
}

// Handler processes updates. It is safe for concurrent use as long as its
// collaborators are.
type Handler struct {
	store        ctxpkg.Store
	assembler    ctxpkg.Assembler
	provider     modelpkg.Provider
	commander    cmdpkg.Commander
	systemPrompt string
	botUsername  string
	recorder     db.Recorder
	metrics      *metrics.Metrics
	logger       zerolog.Logger
	commands     map[string]commandFunc
}

type commandFunc func(ctx context.Context, msg *cmdpkg.Message) error

func NewHandler(opts Options) *Handler {
	h := &Handler{
		store:        opts.Store,
		assembler:    opts.Assembler,
		provider:     opts.Provider,
		commander:    opts.Commander,
		systemPrompt: opts.SystemPrompt,
		botUsername:  strings.TrimPrefix(opts.BotUsername, "@"),
		recorder:     opts.Recorder,
		metrics:      opts.Metrics,
		logger:       opts.Logger,
	}
	if h.recorder == nil {
		h.recorder = db.NopRecorder{}
	}
	if h.assembler == nil {
		h.assembler = &ctxpkg.StandardAssembler{}
	}
	if h.metrics == nil {
		h.metrics = metrics.New(h.store.Len)
	}
	h.commands = map[string]commandFunc{
		"start": h.start,
		"clear": h.clear,
	}
	return h
}

// HandleUpdate processes one update. It never panics and never returns an
// error: failures are logged, recorded, and answered in the chat.
func (h *Handler) HandleUpdate(ctx context.Context, update cmdpkg.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Text == nil || *msg.Text == "" {
		return
	}
	logger := h.logger.With().
		Int64("update_id", update.UpdateID).
		Int64("user_id", msg.From.ID).
		Logger()
	ctx = logger.WithContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			h.fail(ctx, msg, errors.Newf("panic while handling update: %v", r))
		}
	}()

	if err := h.dispatch(ctx, msg); err != nil {
		h.fail(ctx, msg, err)
	}
}

func (h *Handler) dispatch(ctx context.Context, msg *cmdpkg.Message) error {
	text := *msg.Text
	if name, target, ok := parseCommand(text); ok {
		if !h.addressedToUs(target) {
			zerolog.Ctx(ctx).Debug().Str("command", name).Str("target", target).Msg("ignoring command for another bot")
			return nil
		}
		cmd, known := h.commands[name]
		if !known {
			zerolog.Ctx(ctx).Debug().Str("command", name).Msg("ignoring unknown command")
			return nil
		}
		h.metrics.Commands.WithLabelValues(name).Inc()
		return cmd(ctx, msg)
	}
	return h.relay(ctx, msg, text)
}

func (h *Handler) start(ctx context.Context, msg *cmdpkg.Message) error {
	userID := msg.From.ID
	existed := h.store.Clear(userID)
	h.recorder.Record(db.EventContextCleared, map[string]any{
		"user_id": userID,
		"command": "start",
		"existed": existed,
	})
	if err := h.commander.SendMessage(ctx, msg.Chat.ID, welcomeText(msg.From.FirstName)); err != nil {
		return errors.Wrap(err, "send welcome")
	}
	zerolog.Ctx(ctx).Info().Str("first_name", msg.From.FirstName).Msg("user started a conversation")
	return nil
}

func (h *Handler) clear(ctx context.Context, msg *cmdpkg.Message) error {
	userID := msg.From.ID
	existed := h.store.Clear(userID)
	h.recorder.Record(db.EventContextCleared, map[string]any{
		"user_id": userID,
		"command": "clear",
		"existed": existed,
	})
	if err := h.commander.SendMessage(ctx, msg.Chat.ID, clearedText); err != nil {
		return errors.Wrap(err, "send clear confirmation")
	}
	zerolog.Ctx(ctx).Info().Bool("existed", existed).Msg("user cleared context")
	return nil
}

func (h *Handler) relay(ctx context.Context, msg *cmdpkg.Message, text string) error {
	logger := zerolog.Ctx(ctx)
	userID := msg.From.ID
	chatID := msg.Chat.ID

	h.metrics.MessagesReceived.Inc()
	logger.Info().Str("first_name", msg.From.FirstName).Str("text", lo.Ellipsis(text, 200)).Msg("message received")

	h.store.Append(userID, ctxpkg.RoleUser, text)
	history := ctxpkg.ParseTranscript(h.store.Get(userID))
	messages := h.assembler.Assemble(h.systemPrompt, history)
	h.recorder.Record(db.EventMessageReceived, map[string]any{
		"user_id":       userID,
		"history_count": len(history),
	})

	if err := h.commander.SendChatAction(ctx, chatID, cmdpkg.ActionTyping); err != nil {
		logger.Debug().Err(err).Msg("failed to send typing action")
	}

	reply := h.complete(ctx, userID, messages)

	// A blank reply is stored as is so the parser drops it from later
	// requests; only the chat gets a placeholder.
	h.store.Append(userID, ctxpkg.RoleAssistant, reply)
	if strings.TrimSpace(reply) == "" {
		reply = emptyReplyText
	}
	if err := h.commander.SendMessage(ctx, chatID, reply); err != nil {
		return errors.Wrap(err, "send reply")
	}
	h.metrics.RepliesSent.Inc()
	h.recorder.Record(db.EventReplySent, map[string]any{"user_id": userID})
	logger.Info().Str("reply", lo.Ellipsis(reply, 100)).Msg("reply sent")
	return nil
}

// complete calls the provider and always returns the text to record and send.
func (h *Handler) complete(ctx context.Context, userID int64, messages []ctxpkg.Message) string {
	logger := zerolog.Ctx(ctx)
	logger.Info().Int("messages", len(messages)).Msg("requesting completion")

	started := time.Now()
	resp, err := h.provider.ChatCompletion(ctx, messages)
	elapsed := time.Since(started)
	h.metrics.InferenceLatency.Observe(elapsed.Seconds())

	if err != nil {
		class := modelpkg.Classify(err)
		h.metrics.Inference.WithLabelValues(string(class)).Inc()
		h.recorder.Record(db.EventInferenceFailed, map[string]any{
			"user_id":     userID,
			"error_class": string(class),
			"latency_ms":  elapsed.Milliseconds(),
		})
		logger.Error().Err(err).Str("error_class", string(class)).Msg("inference failed")
		return failureReply(class)
	}

	h.metrics.Inference.WithLabelValues("ok").Inc()
	h.recorder.Record(db.EventInferenceCompleted, map[string]any{
		"user_id":       userID,
		"latency_ms":    elapsed.Milliseconds(),
		"input_tokens":  resp.InputTokens,
		"output_tokens": resp.OutputTokens,
	})
	return resp.Content
}

func (h *Handler) fail(ctx context.Context, msg *cmdpkg.Message, err error) {
	h.metrics.HandlerFailures.Inc()
	h.recorder.Record(db.EventHandlerFailed, map[string]any{
		"user_id": msg.From.ID,
		"error":   lo.Ellipsis(err.Error(), 500),
	})
	logger := zerolog.Ctx(ctx)
	logger.Error().Err(err).Msg("failed to handle update")
	if sendErr := h.commander.SendMessage(ctx, msg.Chat.ID, handlerText); sendErr != nil {
		logger.Error().Err(sendErr).Msg("failed to send error reply")
	}
}

func failureReply(class modelpkg.ErrorClass) string {
	switch class {
	case modelpkg.ClassConnection:
		return connectionText
	case modelpkg.ClassTimeout:
		return timeoutText
	default:
		return unexpectedText
	}
}

// addressedToUs reports whether a command with the given @target is meant for
// this bot. Without a known username every target is accepted.
func (h *Handler) addressedToUs(target string) bool {
	return target == "" || h.botUsername == "" || strings.EqualFold(target, h.botUsername)
}

// parseCommand splits "/name@bot args" into the lower-cased name and the
// optional bot target.
func parseCommand(text string) (name, target string, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	name, target, _ = strings.Cut(strings.Fields(text)[0][1:], "@")
	return strings.ToLower(name), target, true
}
