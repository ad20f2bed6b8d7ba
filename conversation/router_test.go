package conversation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"bitbucket.org/mmdatafocus/finbot_backend/config"
	"bitbucket.org/mmdatafocus/finbot_backend/models"
	"bitbucket.org/mmdatafocus/finbot_backend/nlp"
	"bitbucket.org/mmdatafocus/finbot_backend/whatsapp"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	anaPhone  = "56912345678"
	betoPhone = "56987654321"
)

// fakeClassifier returns scripted results instead of calling the model.
type fakeClassifier struct {
	intention  nlp.Intention
	extraction nlp.ExtractedTransaction
}

func (f *fakeClassifier) DetectIntention(ctx context.Context, message string) nlp.Intention {
	return f.intention
}

func (f *fakeClassifier) ExtractTransaction(ctx context.Context, description string) nlp.ExtractedTransaction {
	return f.extraction
}

type sentMessage struct {
	to      string
	body    string
	buttons []whatsapp.Button
}

// recordingSender captures outbound messages instead of calling WhatsApp.
type recordingSender struct {
	mu       sync.Mutex
	messages []sentMessage
}

func (s *recordingSender) SendText(ctx context.Context, to, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, sentMessage{to: to, body: body})
	return nil
}

func (s *recordingSender) SendButtons(ctx context.Context, to, body string, buttons []whatsapp.Button) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, sentMessage{to: to, body: body, buttons: buttons})
	return nil
}

func (s *recordingSender) SendList(ctx context.Context, to, body, buttonLabel string, sections []whatsapp.ListSection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, sentMessage{to: to, body: body})
	return nil
}

func (s *recordingSender) sentTo(to string) []sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []sentMessage
	for _, m := range s.messages {
		if m.to == to {
			out = append(out, m)
		}
	}
	return out
}

func (s *recordingSender) last(t *testing.T) sentMessage {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.messages, "no message was sent")
	return s.messages[len(s.messages)-1]
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

type routerFixture struct {
	router     *Router
	store      *MemoryStore
	sender     *recordingSender
	classifier *fakeClassifier

	nextId int
}

func setupRouter(t *testing.T) *routerFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	config.SetDB(db)
	models.MigrateTable()
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
		config.SetDB(nil)
	})

	f := &routerFixture{
		store:      NewMemoryStore(),
		sender:     &recordingSender{},
		classifier: &fakeClassifier{intention: nlp.IntentionUnknown, extraction: nlp.SafeExtraction()},
	}
	f.router = NewRouter(f.store, NewDeduper(), f.classifier, f.sender)
	return f
}

// send delivers one message with a fresh provider id, the way the webhook
// handler does.
func (f *routerFixture) send(from, text string) {
	f.nextId++
	f.router.ProcessMessage(context.Background(), fmt.Sprintf("wamid.%d", f.nextId), from, text)
}

func (f *routerFixture) registerAna(t *testing.T) *models.User {
	t.Helper()
	user, err := models.RegisterUser(context.Background(), "Ana", "+56912345678", "ana@example.com")
	require.NoError(t, err)
	// Skip the one-time welcome in scenarios that are not about it.
	f.store.MarkSeen(anaPhone)
	return user
}

func TestRouter_UnregisteredUserIsPromptedOnce(t *testing.T) {
	f := setupRouter(t)

	f.send(anaPhone, "hola")
	require.Equal(t, 1, f.sender.count())
	require.Equal(t, replyRegistrationRequired, f.sender.last(t).body)

	// Later messages from the same number stay silent.
	f.send(anaPhone, "gasté 5000 en pan")
	require.Equal(t, 1, f.sender.count())
}

func TestRouter_FirstContactWelcomesRegisteredUser(t *testing.T) {
	f := setupRouter(t)
	_, err := models.RegisterUser(context.Background(), "Ana", "+56912345678", "ana@example.com")
	require.NoError(t, err)

	f.send(anaPhone, "hola")
	require.Equal(t, replyWelcome, f.sender.last(t).body)
}

func TestRouter_SingleAccountExpensePostsDirectly(t *testing.T) {
	f := setupRouter(t)
	user := f.registerAna(t)
	f.classifier.intention = nlp.IntentionTransaction
	amount := int64(5000)
	f.classifier.extraction = nlp.ExtractedTransaction{Kind: "expense", Category: "Alimentación", Amount: &amount}

	f.send(anaPhone, "gasté 5000 en supermercado")

	reply := f.sender.last(t).body
	require.Contains(t, reply, "Gasto registrado")
	require.Contains(t, reply, "Alimentación")
	require.Contains(t, reply, "$5.000")

	accounts, err := models.GetUserAccounts(context.Background(), user.ID)
	require.NoError(t, err)
	require.Equal(t, int64(-5000), accounts[0].Balance)
}

func TestRouter_AmbiguousAccountGoesThroughSelection(t *testing.T) {
	f := setupRouter(t)
	user := f.registerAna(t)
	ctx := context.Background()
	efectivo, err := models.CreateAccount(ctx, user.ID, "Efectivo")
	require.NoError(t, err)
	_, err = models.CreateAccount(ctx, user.ID, "Cuenta Débito")
	require.NoError(t, err)

	f.classifier.intention = nlp.IntentionTransaction
	amount := int64(20000)
	f.classifier.extraction = nlp.ExtractedTransaction{Kind: "income", Category: "Freelance", Amount: &amount}

	// No account is named in the message, so the bot must ask.
	f.send(anaPhone, "recibí 20000 por un trabajo")
	prompt := f.sender.last(t)
	require.Contains(t, prompt.body, "¿En qué cuenta")
	require.Len(t, prompt.buttons, 3)

	// "2" is Efectivo: Cuenta Personal has the lowest id.
	f.send(anaPhone, "2")
	require.Contains(t, f.sender.last(t).body, "Ingreso registrado")

	got, err := models.GetAccountById(ctx, efectivo.ID)
	require.NoError(t, err)
	require.Equal(t, int64(20000), got.Balance)

	_, open := f.store.Get(anaPhone)
	require.False(t, open, "selection flow must close after posting")
}

func TestRouter_SelectionRetriesOnUnrecognizedAnswer(t *testing.T) {
	f := setupRouter(t)
	user := f.registerAna(t)
	ctx := context.Background()
	_, err := models.CreateAccount(ctx, user.ID, "Efectivo")
	require.NoError(t, err)

	f.classifier.intention = nlp.IntentionTransaction
	amount := int64(3000)
	f.classifier.extraction = nlp.ExtractedTransaction{Kind: "expense", Category: "Otros", Amount: &amount}

	f.send(anaPhone, "gasté 3000")
	f.send(anaPhone, "zzz")
	require.Equal(t, replySelectionRetry, f.sender.last(t).body)
	_, open := f.store.Get(anaPhone)
	require.True(t, open, "flow must stay open after a retry")

	f.send(anaPhone, "Efectivo")
	require.Contains(t, f.sender.last(t).body, "Gasto registrado")
}

func TestRouter_CancelClosesAnyFlow(t *testing.T) {
	f := setupRouter(t)
	user := f.registerAna(t)
	ctx := context.Background()
	_, err := models.CreateAccount(ctx, user.ID, "Efectivo")
	require.NoError(t, err)

	f.classifier.intention = nlp.IntentionTransaction
	amount := int64(3000)
	f.classifier.extraction = nlp.ExtractedTransaction{Kind: "expense", Category: "Otros", Amount: &amount}

	f.send(anaPhone, "gasté 3000")
	f.send(anaPhone, "Cancelar")
	require.Equal(t, replyCancelled, f.sender.last(t).body)

	_, open := f.store.Get(anaPhone)
	require.False(t, open)
	accounts, err := models.GetUserAccounts(ctx, user.ID)
	require.NoError(t, err)
	for _, acc := range accounts {
		rows, err := models.GetAccountTransactions(ctx, acc.ID, 0)
		require.NoError(t, err)
		require.Empty(t, rows, "cancelled draft must not be posted")
	}
}

func TestRouter_DuplicateDeliveryPostsOnce(t *testing.T) {
	f := setupRouter(t)
	user := f.registerAna(t)
	f.classifier.intention = nlp.IntentionTransaction
	amount := int64(5000)
	f.classifier.extraction = nlp.ExtractedTransaction{Kind: "expense", Category: "Otros", Amount: &amount}

	ctx := context.Background()
	f.router.ProcessMessage(ctx, "wamid.dup", anaPhone, "gasté 5000")
	f.router.ProcessMessage(ctx, "wamid.dup", anaPhone, "gasté 5000")

	accounts, err := models.GetUserAccounts(ctx, user.ID)
	require.NoError(t, err)
	rows, err := models.GetAccountTransactions(ctx, accounts[0].ID, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, int64(-5000), accounts[0].Balance)
}

func TestRouter_DeleteAccountNeedsExactConfirmation(t *testing.T) {
	f := setupRouter(t)
	user := f.registerAna(t)
	ctx := context.Background()
	account, err := models.CreateAccount(ctx, user.ID, "Ahorros")
	require.NoError(t, err)

	f.send(anaPhone, "eliminar cuenta Ahorros")
	require.Contains(t, f.sender.last(t).body, "irreversible")

	// Anything but "confirmar" cancels.
	f.send(anaPhone, "si")
	require.Equal(t, replyCancelled, f.sender.last(t).body)
	_, err = models.GetAccountById(ctx, account.ID)
	require.NoError(t, err, "account must survive an ambiguous answer")

	f.send(anaPhone, "eliminar cuenta Ahorros")
	f.send(anaPhone, "Confirmar")
	require.Contains(t, f.sender.last(t).body, "eliminada")
	_, err = models.GetAccountById(ctx, account.ID)
	require.Error(t, err)
}

func TestRouter_RenameFlow(t *testing.T) {
	f := setupRouter(t)
	user := f.registerAna(t)
	ctx := context.Background()
	account, err := models.CreateAccount(ctx, user.ID, "Ahorros")
	require.NoError(t, err)

	f.send(anaPhone, "renombrar Ahorros a Vacaciones")
	require.Contains(t, f.sender.last(t).body, "Vacaciones")

	f.send(anaPhone, "renombrar")
	got, err := models.GetAccountById(ctx, account.ID)
	require.NoError(t, err)
	require.Equal(t, "Vacaciones", got.Name)
}

func TestRouter_RenameToExistingNameIsRejected(t *testing.T) {
	f := setupRouter(t)
	user := f.registerAna(t)
	ctx := context.Background()
	ahorros, err := models.CreateAccount(ctx, user.ID, "Ahorros")
	require.NoError(t, err)
	_, err = models.CreateAccount(ctx, user.ID, "Vacaciones")
	require.NoError(t, err)

	f.send(anaPhone, "renombrar Ahorros a vacaciones")
	require.Contains(t, f.sender.last(t).body, "Ya tienes una cuenta llamada")

	// No confirmation dialog was opened and the name is untouched.
	_, open := f.store.Get(anaPhone)
	require.False(t, open)
	got, err := models.GetAccountById(ctx, ahorros.ID)
	require.NoError(t, err)
	require.Equal(t, "Ahorros", got.Name)
}

func TestRouter_TransferBetweenOwnAccounts(t *testing.T) {
	f := setupRouter(t)
	user := f.registerAna(t)
	ctx := context.Background()
	efectivo, err := models.CreateAccount(ctx, user.ID, "Efectivo")
	require.NoError(t, err)
	ahorros, err := models.CreateAccount(ctx, user.ID, "Ahorros")
	require.NoError(t, err)
	amount := int64(10000)
	_, err = models.PostTransaction(ctx, models.NewTransaction{
		AccountId: efectivo.ID, UserId: user.ID,
		Kind: models.TransactionKindIncome, Amount: &amount, Category: "Salario",
	})
	require.NoError(t, err)

	f.send(anaPhone, "transferir 4000 de Efectivo a Ahorros")
	require.Contains(t, f.sender.last(t).body, "Transferencia de $4.000")

	gotSource, err := models.GetAccountById(ctx, efectivo.ID)
	require.NoError(t, err)
	gotDestination, err := models.GetAccountById(ctx, ahorros.ID)
	require.NoError(t, err)
	require.Equal(t, int64(6000), gotSource.Balance)
	require.Equal(t, int64(4000), gotDestination.Balance)
}

func TestRouter_TransferWithInsufficientBalance(t *testing.T) {
	f := setupRouter(t)
	user := f.registerAna(t)
	ctx := context.Background()
	_, err := models.CreateAccount(ctx, user.ID, "Efectivo")
	require.NoError(t, err)
	_, err = models.CreateAccount(ctx, user.ID, "Ahorros")
	require.NoError(t, err)

	f.send(anaPhone, "transferir 4000 de Efectivo a Ahorros")
	require.Contains(t, f.sender.last(t).body, "Saldo insuficiente")
}

func TestRouter_InviteRegisteredUserEndToEnd(t *testing.T) {
	f := setupRouter(t)
	ana := f.registerAna(t)
	ctx := context.Background()
	beto, err := models.RegisterUser(ctx, "Beto", "+56987654321", "beto@example.com")
	require.NoError(t, err)
	account, err := models.CreateAccount(ctx, ana.ID, "Gastos del Hogar")
	require.NoError(t, err)

	f.send(anaPhone, "Invitar a +56987654321 a Gastos del Hogar")
	require.Contains(t, f.sender.last(t).body, "invitar")

	f.send(anaPhone, "invitar")
	// The invitee was pinged and their response dialog opened.
	betoInbox := f.sender.sentTo(betoPhone)
	require.NotEmpty(t, betoInbox)
	require.Contains(t, betoInbox[len(betoInbox)-1].body, "Gastos del Hogar")
	session, open := f.store.Get(betoPhone)
	require.True(t, open)
	require.Equal(t, FlowAwaitingInvitationResponse, session.Flow)

	f.send(betoPhone, "aceptar")
	owners, err := models.GetAccountOwners(ctx, account.ID)
	require.NoError(t, err)
	require.Len(t, owners, 2)
	require.Equal(t, beto.ID, owners[1].ID)

	// The inviter hears about the acceptance.
	var notified bool
	for _, m := range f.sender.sentTo(anaPhone) {
		if strings.Contains(m.body, "aceptó") {
			notified = true
		}
	}
	require.True(t, notified)
}

func TestRouter_FirstContactSurfacesPendingInvitation(t *testing.T) {
	f := setupRouter(t)
	ana := f.registerAna(t)
	ctx := context.Background()
	account, err := models.CreateAccount(ctx, ana.ID, "Gastos del Hogar")
	require.NoError(t, err)
	beto, err := models.RegisterUser(ctx, "Beto", "+56987654321", "beto@example.com")
	require.NoError(t, err)
	_, err = models.CreateInvitation(ctx, account.ID, ana.ID, "+56987654321")
	require.NoError(t, err)

	// Beto has never messaged the bot, so the very first message opens the
	// invitation dialog instead of the plain welcome.
	f.send(betoPhone, "hola")
	require.Contains(t, f.sender.last(t).body, "Gastos del Hogar")
	session, open := f.store.Get(betoPhone)
	require.True(t, open)
	require.Equal(t, FlowAwaitingInvitationResponse, session.Flow)

	f.send(betoPhone, "aceptar")
	owners, err := models.GetAccountOwners(ctx, account.ID)
	require.NoError(t, err)
	require.Len(t, owners, 2)
	require.Equal(t, beto.ID, owners[1].ID)
}

func TestRouter_InviteUnregisteredPhoneStaysPending(t *testing.T) {
	f := setupRouter(t)
	ana := f.registerAna(t)
	ctx := context.Background()
	account, err := models.CreateAccount(ctx, ana.ID, "Gastos del Hogar")
	require.NoError(t, err)

	f.send(anaPhone, "Invitar a +56987654321 a Gastos del Hogar")
	require.Contains(t, f.sender.last(t).body, "aún no está registrado")

	f.send(anaPhone, "invitar")
	require.Contains(t, f.sender.last(t).body, "Invitación enviada")

	pending, err := models.GetPendingInvitations(ctx, betoPhone)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, account.ID, pending[0].AccountId)
	require.False(t, pending[0].UserExists)
}

func TestRouter_BalanceListsEveryAccount(t *testing.T) {
	f := setupRouter(t)
	user := f.registerAna(t)
	ctx := context.Background()
	_, err := models.CreateAccount(ctx, user.ID, "Efectivo")
	require.NoError(t, err)
	f.classifier.intention = nlp.IntentionBalance

	f.send(anaPhone, "cuánto tengo")
	reply := f.sender.last(t).body
	require.Contains(t, reply, "Cuenta Personal")
	require.Contains(t, reply, "Efectivo")
	require.Contains(t, reply, "Total")
}
