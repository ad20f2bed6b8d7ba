package conversation

import (
	"context"
	"strings"
	"sync"
	"time"

	"bitbucket.org/mmdatafocus/finbot_backend/config"
	"bitbucket.org/mmdatafocus/finbot_backend/models"
	"bitbucket.org/mmdatafocus/finbot_backend/nlp"
	"bitbucket.org/mmdatafocus/finbot_backend/utils"
	"bitbucket.org/mmdatafocus/finbot_backend/whatsapp"
	"github.com/google/uuid"
)

// Router turns inbound chat messages into ledger operations. All shared
// state (dedup window, dialog store, per-phone locks) is owned by this
// object: created at service start, never persisted, safe to lose on
// restart.
type Router struct {
	store      Store
	dedup      *Deduper
	classifier nlp.Classifier
	sender     whatsapp.Sender

	mu         sync.Mutex
	phoneLocks map[string]*sync.Mutex
}

func NewRouter(store Store, dedup *Deduper, classifier nlp.Classifier, sender whatsapp.Sender) *Router {
	return &Router{
		store:      store,
		dedup:      dedup,
		classifier: classifier,
		sender:     sender,
		phoneLocks: make(map[string]*sync.Mutex),
	}
}

func (r *Router) phoneLock(phone string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.phoneLocks[phone]
	if !ok {
		lock = &sync.Mutex{}
		r.phoneLocks[phone] = lock
	}
	return lock
}

// ProcessMessage handles one inbound message end to end. The webhook acks
// regardless of the outcome; by the time this returns, either every side
// effect ran or the failure was already reported to the user.
func (r *Router) ProcessMessage(ctx context.Context, messageId, from, text string) {
	logger := config.GetLogger()

	if messageId == "" {
		messageId = uuid.NewString()
	}
	if r.dedup.CheckAndMark(messageId) {
		logger.WithField("messageId", messageId).Debug("duplicate delivery dropped")
		return
	}

	ctx = utils.SetCorrelationIdInContext(ctx, messageId)
	ctx = utils.SetFromPhoneInContext(ctx, from)
	config.LogInbound(logger, messageId, from, text)

	// Serialize per phone. The local mutex is authoritative within this
	// process; the redis lock is a best-effort optimization across
	// instances and handling must not depend on it.
	lock := r.phoneLock(from)
	lock.Lock()
	defer lock.Unlock()
	if locker := config.GetRedisLock(); locker != nil {
		if rl, err := locker.Obtain(ctx, "phone:"+from, 30*time.Second, nil); err == nil {
			defer rl.Release(ctx)
		}
	}

	r.handle(ctx, from, strings.TrimSpace(text))
}

func (r *Router) handle(ctx context.Context, from, text string) {
	user, err := models.GetUserByPhone(ctx, from)
	if err != nil {
		config.LogError(config.GetLogger(), "conversation", "handle", "GetUserByPhone", from, err)
		r.reply(ctx, from, replyOperationFailed)
		return
	}

	firstContact := !r.store.Seen(from)
	if firstContact {
		r.store.MarkSeen(from)
	}

	// Registration happens on the web, never from chat. Unregistered and
	// incomplete (no email) users get the prompt once, then silence.
	if user == nil || !user.IsComplete() {
		if firstContact {
			r.reply(ctx, from, replyRegistrationRequired)
		}
		return
	}

	if firstContact {
		r.handleFirstContact(ctx, from, user)
		return
	}

	// "cancelar" always wins, dialog or not.
	if strings.EqualFold(text, "cancelar") {
		r.store.Clear(from)
		r.reply(ctx, from, replyCancelled)
		return
	}

	// While a dialog is open, the message is only ever an answer to it;
	// intent classification is skipped entirely.
	if session, ok := r.store.Get(from); ok {
		r.resumeFlow(ctx, from, user, session, text)
		return
	}

	switch r.classifier.DetectIntention(ctx, text) {
	case nlp.IntentionTransaction:
		r.handleTransaction(ctx, from, user, text)
	case nlp.IntentionGreeting:
		r.reply(ctx, from, replyGreeting)
	case nlp.IntentionHelp:
		r.reply(ctx, from, replyHelp)
	case nlp.IntentionBalance:
		r.handleBalance(ctx, from, user)
	default:
		r.handleUnknown(ctx, from, user, text)
	}
}

// handleFirstContact greets a registered user, or surfaces their pending
// invitations when there are any.
func (r *Router) handleFirstContact(ctx context.Context, from string, user *models.User) {
	invitations, err := models.GetPendingInvitations(ctx, from)
	if err != nil {
		config.LogError(config.GetLogger(), "conversation", "handleFirstContact", "GetPendingInvitations", from, err)
		invitations = nil
	}
	if len(invitations) == 0 {
		r.reply(ctx, from, replyWelcome)
		return
	}

	ids := make([]int, 0, len(invitations))
	for _, inv := range invitations {
		ids = append(ids, inv.ID)
	}
	r.store.Set(from, &Session{Flow: FlowAwaitingInvitationResponse, InvitationIds: ids})
	r.replyButtons(ctx, from, invitationResponsePrompt(invitations), []whatsapp.Button{
		{Title: "Aceptar"},
		{Title: "Rechazar"},
	})
}

// reply sends a text message. Delivery failures are logged and swallowed: a
// failed reply never aborts a mutation that already committed.
func (r *Router) reply(ctx context.Context, to, body string) {
	if err := r.sender.SendText(ctx, to, body); err != nil {
		config.LogError(config.GetLogger(), "conversation", "reply", to, nil, err)
	}
}

func (r *Router) replyButtons(ctx context.Context, to, body string, buttons []whatsapp.Button) {
	if err := r.sender.SendButtons(ctx, to, body, buttons); err != nil {
		config.LogError(config.GetLogger(), "conversation", "replyButtons", to, nil, err)
	}
}

func (r *Router) replyList(ctx context.Context, to, body, buttonLabel string, sections []whatsapp.ListSection) {
	if err := r.sender.SendList(ctx, to, body, buttonLabel, sections); err != nil {
		config.LogError(config.GetLogger(), "conversation", "replyList", to, nil, err)
	}
}
