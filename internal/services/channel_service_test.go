package services

import (
	"context"
	"crypto/ed25519"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/collateral-pay/backend/internal/config"
	"github.com/collateral-pay/backend/internal/events"
	"github.com/collateral-pay/backend/internal/keys"
	"github.com/collateral-pay/backend/internal/models"
	"github.com/collateral-pay/backend/internal/repositories"
	"github.com/collateral-pay/backend/internal/vault"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testProgram = keys.Address{0xC0, 0x11, 0xA7}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
	bus    *events.MemoryBus
}

// newRecorder подписывается на поток каналов bus.
func newRecorder(t *testing.T, bus *events.MemoryBus) *recorder {
	t.Helper()
	r := &recorder{bus: bus}
	require.NoError(t, bus.Subscribe(context.Background(), events.StreamChannel, r.handle))
	return r
}

func (r *recorder) handle(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) types() []string {
	r.bus.Flush()
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	ctx    context.Context
	store  *repositories.MemStore
	svc    *ChannelService
	cfg    *config.Config
	events *recorder

	buyer, seller keys.Address
	buyerTokens   keys.Address
	sellerPayout  keys.Address
	mint          keys.Address
}

func newAddr(t *testing.T) keys.Address {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	addr, err := keys.FromPublicKey(pub)
	require.NoError(t, err)
	return addr
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ctx:    context.Background(),
		store:  repositories.NewMemStore(),
		cfg:    &config.Config{ProgramID: testProgram},
	}
	bus := events.NewMemoryBus()
	f.events = newRecorder(t, bus)
	f.svc = NewChannelService(f.store, bus, f.cfg, zap.NewNop())

	f.buyer, f.seller = newAddr(t), newAddr(t)
	f.buyerTokens, f.sellerPayout, f.mint = newAddr(t), newAddr(t), newAddr(t)

	f.store.SeedNative(f.buyer, 1_000)
	f.store.SeedTokenAccount(models.TokenAccount{Address: f.buyerTokens, Owner: f.buyer, Mint: f.mint, Balance: 100})
	f.store.SeedTokenAccount(models.TokenAccount{Address: f.sellerPayout, Owner: f.seller, Mint: f.mint})
	return f
}

func (f *fixture) input(t *testing.T, owed uint64) CreateChannelInput {
	t.Helper()
	addr, nonce, err := vault.FindAddress(testProgram, vault.BuyerSeeds(f.buyer))
	require.NoError(t, err)
	return CreateChannelInput{
		AmountOwed:          owed,
		Seller:              f.seller,
		SellerPayoutAddress: f.sellerPayout,
		VaultAddress:        addr,
		VaultNonce:          nonce,
	}
}

func (f *fixture) create(t *testing.T, owed uint64) *models.PaymentChannel {
	t.Helper()
	ch, err := f.svc.CreateChannel(f.ctx, f.buyer, f.input(t, owed))
	require.NoError(t, err)
	return ch
}

func (f *fixture) native(addr keys.Address) uint64 {
	b, _ := f.store.NativeBalance(f.ctx, addr)
	return b
}

func (f *fixture) tokens(t *testing.T, addr keys.Address) uint64 {
	acc, err := f.store.GetTokenAccount(f.ctx, addr)
	require.NoError(t, err)
	return acc.Balance
}

// ledgerState - запись канала и все затронутые им балансы.
type ledgerState struct {
	Channel      models.PaymentChannel
	BuyerNative  uint64
	SellerNative uint64
	VaultNative  uint64
	BuyerTokens  uint64
	SellerPayout uint64
}

func (f *fixture) state(t *testing.T, id uuid.UUID) ledgerState {
	t.Helper()
	ch, err := f.store.GetChannel(f.ctx, id)
	require.NoError(t, err)
	return ledgerState{
		Channel:      *ch,
		BuyerNative:  f.native(f.buyer),
		SellerNative: f.native(f.seller),
		VaultNative:  f.native(ch.VaultAddress),
		BuyerTokens:  f.tokens(t, f.buyerTokens),
		SellerPayout: f.tokens(t, f.sellerPayout),
	}
}

func TestChannel_FullLifecycle(t *testing.T) {
	f := newFixture(t)
	ch := f.create(t, 5)

	require.Equal(t, f.buyer, ch.Buyer)
	require.Equal(t, uint64(0), ch.AmountPaid)
	require.False(t, ch.CollateralLocked)
	require.False(t, ch.CollateralWithdrawn)
	require.Equal(t, models.PhaseCreated, ch.Phase())

	ch, err := f.svc.LockCollateral(f.ctx, f.buyer, ch.ID, 300)
	require.NoError(t, err)
	require.True(t, ch.CollateralLocked)
	require.Equal(t, uint64(700), f.native(f.buyer))
	require.Equal(t, uint64(300), f.native(ch.VaultAddress))

	ch, err = f.svc.PayAmount(f.ctx, f.buyer, ch.ID, 2, f.buyerTokens)
	require.NoError(t, err)
	require.Equal(t, uint64(2), ch.AmountPaid)
	require.Equal(t, models.PhasePartiallyPaid, ch.Phase())

	_, err = f.svc.WithdrawLocked(f.ctx, f.buyer, ch.ID)
	require.ErrorIs(t, err, models.ErrNotFullyPaid)

	ch, err = f.svc.PayAmount(f.ctx, f.buyer, ch.ID, 3, f.buyerTokens)
	require.NoError(t, err)
	require.Equal(t, uint64(5), ch.AmountPaid)
	require.Equal(t, uint64(95), f.tokens(t, f.buyerTokens))
	require.Equal(t, uint64(5), f.tokens(t, f.sellerPayout))

	ch, err = f.svc.WithdrawLocked(f.ctx, f.buyer, ch.ID)
	require.NoError(t, err)
	require.True(t, ch.CollateralWithdrawn)
	require.Equal(t, models.PhaseWithdrawn, ch.Phase())
	require.Equal(t, uint64(1_000), f.native(f.buyer))
	require.Equal(t, uint64(0), f.native(ch.VaultAddress))

	require.Equal(t, []string{
		events.EventChannelCreated,
		events.EventCollateralLocked,
		events.EventPaymentApplied,
		events.EventPaymentApplied,
		events.EventCollateralWithdrawn,
	}, f.events.types())

	history, err := f.svc.ChannelHistory(f.ctx, f.seller, ch.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, history, 5)
	require.Equal(t, models.AuditChannelCreated, history[0].Action)
	require.Equal(t, models.AuditCollateralWithdrawn, history[4].Action)
}

func TestCreateChannel_Validation(t *testing.T) {
	f := newFixture(t)
	good := f.input(t, 5)

	tests := []struct {
		name   string
		mutate func(in *CreateChannelInput)
		want   error
	}{
		{"zero owed", func(in *CreateChannelInput) { in.AmountOwed = 0 }, models.ErrInvalidAmount},
		{"owed beyond storage", func(in *CreateChannelInput) { in.AmountOwed = math.MaxInt64 + 1 }, models.ErrInvalidAmount},
		{"zero seller", func(in *CreateChannelInput) { in.Seller = keys.Zero }, models.ErrInvalidParty},
		{"zero payout", func(in *CreateChannelInput) { in.SellerPayoutAddress = keys.Zero }, models.ErrInvalidParty},
		{"wrong nonce", func(in *CreateChannelInput) { in.VaultNonce-- }, models.ErrVaultAddressMismatch},
		{"foreign vault", func(in *CreateChannelInput) { in.VaultAddress = newAddr(t) }, models.ErrVaultAddressMismatch},
		// сумма проверяется раньше сторон
		{"amount before party", func(in *CreateChannelInput) { in.AmountOwed = 0; in.Seller = keys.Zero }, models.ErrInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := good
			tt.mutate(&in)
			_, err := f.svc.CreateChannel(f.ctx, f.buyer, in)
			require.ErrorIs(t, err, tt.want)
		})
	}

	list, err := f.svc.ListChannels(f.ctx, f.buyer, ListChannelsInput{})
	require.NoError(t, err)
	require.Empty(t, list)
	require.Empty(t, f.events.types())
}

func TestCreateChannel_VaultDerivedFromCaller(t *testing.T) {
	f := newFixture(t)
	in := f.input(t, 5)

	// тот же vault, но другой вызывающий: деривация не совпадает
	_, err := f.svc.CreateChannel(f.ctx, f.seller, in)
	require.ErrorIs(t, err, models.ErrVaultAddressMismatch)
}

func TestCreateChannel_VaultInUse(t *testing.T) {
	f := newFixture(t)
	f.create(t, 5)

	_, err := f.svc.CreateChannel(f.ctx, f.buyer, f.input(t, 7))
	require.ErrorIs(t, err, models.ErrVaultInUse)

	addr, nonce, err := f.svc.SuggestVault(f.ctx, f.buyer)
	require.NoError(t, err)
	in := f.input(t, 7)
	require.NotEqual(t, in.VaultAddress, addr)
	require.Less(t, nonce, in.VaultNonce)

	in.VaultAddress, in.VaultNonce = addr, nonce
	_, err = f.svc.CreateChannel(f.ctx, f.buyer, in)
	require.NoError(t, err)
}

func TestLockCollateral(t *testing.T) {
	f := newFixture(t)
	ch := f.create(t, 5)

	_, err := f.svc.LockCollateral(f.ctx, f.buyer, uuid.New(), 10)
	require.ErrorIs(t, err, models.ErrChannelNotFound)

	_, err = f.svc.LockCollateral(f.ctx, f.seller, ch.ID, 10)
	require.ErrorIs(t, err, models.ErrUnauthorized)

	_, err = f.svc.LockCollateral(f.ctx, f.buyer, ch.ID, 0)
	require.ErrorIs(t, err, models.ErrInvalidAmount)

	_, err = f.svc.LockCollateral(f.ctx, f.buyer, ch.ID, 5_000)
	require.ErrorIs(t, err, models.ErrInsufficientFunds)
	require.Equal(t, uint64(1_000), f.native(f.buyer))

	got, err := f.store.GetChannel(f.ctx, ch.ID)
	require.NoError(t, err)
	require.False(t, got.CollateralLocked)

	_, err = f.svc.LockCollateral(f.ctx, f.buyer, ch.ID, 10)
	require.NoError(t, err)

	_, err = f.svc.LockCollateral(f.ctx, f.buyer, ch.ID, 10)
	require.ErrorIs(t, err, models.ErrAlreadyLocked)
	require.Equal(t, uint64(10), f.native(ch.VaultAddress))

	// флаг проверяется раньше суммы
	_, err = f.svc.LockCollateral(f.ctx, f.buyer, ch.ID, 0)
	require.ErrorIs(t, err, models.ErrAlreadyLocked)
}

func TestPayAmount(t *testing.T) {
	f := newFixture(t)
	ch := f.create(t, 5)

	before := f.state(t, ch.ID)
	_, err := f.svc.PayAmount(f.ctx, f.seller, ch.ID, 1, f.buyerTokens)
	require.ErrorIs(t, err, models.ErrUnauthorized)
	_, err = f.svc.PayAmount(f.ctx, newAddr(t), ch.ID, 1, f.buyerTokens)
	require.ErrorIs(t, err, models.ErrUnauthorized)
	after := f.state(t, ch.ID)
	require.Equal(t, before, after)
	require.Zero(t, after.Channel.AmountPaid)
	require.Equal(t, uint64(100), after.BuyerTokens)
	require.Zero(t, after.SellerPayout)

	_, err = f.svc.PayAmount(f.ctx, f.buyer, ch.ID, 0, f.buyerTokens)
	require.ErrorIs(t, err, models.ErrInvalidAmount)

	_, err = f.svc.PayAmount(f.ctx, f.buyer, ch.ID, 6, f.buyerTokens)
	require.ErrorIs(t, err, models.ErrOverpayment)

	_, err = f.svc.PayAmount(f.ctx, f.buyer, ch.ID, math.MaxUint64, f.buyerTokens)
	require.ErrorIs(t, err, models.ErrOverpayment)

	_, err = f.svc.PayAmount(f.ctx, f.buyer, ch.ID, 4, f.buyerTokens)
	require.NoError(t, err)

	_, err = f.svc.PayAmount(f.ctx, f.buyer, ch.ID, 2, f.buyerTokens)
	require.ErrorIs(t, err, models.ErrOverpayment)

	ch, err = f.svc.PayAmount(f.ctx, f.buyer, ch.ID, 1, f.buyerTokens)
	require.NoError(t, err)
	require.True(t, ch.FullyPaid())

	_, err = f.svc.PayAmount(f.ctx, f.buyer, ch.ID, 1, f.buyerTokens)
	require.ErrorIs(t, err, models.ErrOverpayment)
	require.Equal(t, uint64(5), f.tokens(t, f.sellerPayout))
}

func TestPayAmount_LedgerErrorsRollBack(t *testing.T) {
	f := newFixture(t)
	ch := f.create(t, 500)

	otherMint := newAddr(t)
	foreign := newAddr(t)
	wrongMint := newAddr(t)
	f.store.SeedTokenAccount(models.TokenAccount{Address: foreign, Owner: f.seller, Mint: f.mint, Balance: 50})
	f.store.SeedTokenAccount(models.TokenAccount{Address: wrongMint, Owner: f.buyer, Mint: otherMint, Balance: 50})

	tests := []struct {
		name   string
		source keys.Address
		amount uint64
		want   error
	}{
		{"insufficient", f.buyerTokens, 101, models.ErrInsufficientFunds},
		{"not owner", foreign, 1, models.ErrUnauthorized},
		{"missing account", newAddr(t), 1, models.ErrAccountNotFound},
		{"mint mismatch", wrongMint, 1, models.ErrMintMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.PayAmount(f.ctx, f.buyer, ch.ID, tt.amount, tt.source)
			require.ErrorIs(t, err, tt.want)
		})
	}

	got, err := f.store.GetChannel(f.ctx, ch.ID)
	require.NoError(t, err)
	require.Equal(t, uint64(0), got.AmountPaid)
	require.Equal(t, uint64(100), f.tokens(t, f.buyerTokens))
	require.Equal(t, uint64(0), f.tokens(t, f.sellerPayout))

	history, err := f.svc.ChannelHistory(f.ctx, f.buyer, ch.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
}

func TestPayBeforeLock(t *testing.T) {
	f := newFixture(t)
	ch := f.create(t, 5)

	_, err := f.svc.PayAmount(f.ctx, f.buyer, ch.ID, 5, f.buyerTokens)
	require.NoError(t, err)

	_, err = f.svc.WithdrawLocked(f.ctx, f.buyer, ch.ID)
	require.ErrorIs(t, err, models.ErrNothingLocked)

	_, err = f.svc.LockCollateral(f.ctx, f.buyer, ch.ID, 40)
	require.NoError(t, err)

	ch, err = f.svc.WithdrawLocked(f.ctx, f.buyer, ch.ID)
	require.NoError(t, err)
	require.True(t, ch.CollateralWithdrawn)
	require.Equal(t, uint64(1_000), f.native(f.buyer))
}

func TestWithdrawLocked(t *testing.T) {
	f := newFixture(t)
	ch := f.create(t, 5)

	// не оплачено: NotFullyPaid независимо от состояния залога
	_, err := f.svc.WithdrawLocked(f.ctx, f.buyer, ch.ID)
	require.ErrorIs(t, err, models.ErrNotFullyPaid)

	_, err = f.svc.LockCollateral(f.ctx, f.buyer, ch.ID, 100)
	require.NoError(t, err)
	_, err = f.svc.WithdrawLocked(f.ctx, f.buyer, ch.ID)
	require.ErrorIs(t, err, models.ErrNotFullyPaid)

	_, err = f.svc.PayAmount(f.ctx, f.buyer, ch.ID, 5, f.buyerTokens)
	require.NoError(t, err)

	before := f.state(t, ch.ID)
	_, err = f.svc.WithdrawLocked(f.ctx, f.seller, ch.ID)
	require.ErrorIs(t, err, models.ErrUnauthorized)

	_, err = f.svc.WithdrawLocked(f.ctx, newAddr(t), ch.ID)
	require.ErrorIs(t, err, models.ErrUnauthorized)
	after := f.state(t, ch.ID)
	require.Equal(t, before, after)
	require.False(t, after.Channel.CollateralWithdrawn)
	require.Equal(t, uint64(100), after.VaultNative)
	require.Equal(t, uint64(900), after.BuyerNative)
	require.Zero(t, after.SellerNative)

	_, err = f.svc.WithdrawLocked(f.ctx, f.buyer, uuid.New())
	require.ErrorIs(t, err, models.ErrChannelNotFound)

	_, err = f.svc.WithdrawLocked(f.ctx, f.buyer, ch.ID)
	require.NoError(t, err)

	_, err = f.svc.WithdrawLocked(f.ctx, f.buyer, ch.ID)
	require.ErrorIs(t, err, models.ErrAlreadyWithdrawn)
	require.Equal(t, uint64(1_000), f.native(f.buyer))
}

func TestWithdrawLocked_ReturnsFullVaultBalance(t *testing.T) {
	f := newFixture(t)
	ch := f.create(t, 1)

	_, err := f.svc.LockCollateral(f.ctx, f.buyer, ch.ID, 100)
	require.NoError(t, err)
	_, err = f.svc.PayAmount(f.ctx, f.buyer, ch.ID, 1, f.buyerTokens)
	require.NoError(t, err)

	// кто-то докинул в vault
	donor := newAddr(t)
	f.store.SeedNative(donor, 7)
	require.NoError(t, f.store.InTx(f.ctx, func(tx repositories.Tx) error {
		return tx.TransferNative(f.ctx, donor, ch.VaultAddress, 7)
	}))

	_, err = f.svc.WithdrawLocked(f.ctx, f.buyer, ch.ID)
	require.NoError(t, err)
	require.Equal(t, uint64(1_007), f.native(f.buyer))
	require.Equal(t, uint64(0), f.native(ch.VaultAddress))
}

func TestWithdrawLocked_DerivationMismatch(t *testing.T) {
	f := newFixture(t)
	ch := f.create(t, 1)
	_, err := f.svc.LockCollateral(f.ctx, f.buyer, ch.ID, 100)
	require.NoError(t, err)
	_, err = f.svc.PayAmount(f.ctx, f.buyer, ch.ID, 1, f.buyerTokens)
	require.NoError(t, err)

	// другой program id: переподпись даёт другой адрес
	other := NewChannelService(f.store, events.NewMemoryBus(), &config.Config{ProgramID: keys.Address{9}}, zap.NewNop())
	_, err = other.WithdrawLocked(f.ctx, f.buyer, ch.ID)
	require.ErrorIs(t, err, models.ErrVaultDerivationMismatch)
	require.Equal(t, uint64(100), f.native(ch.VaultAddress))

	got, err := f.store.GetChannel(f.ctx, ch.ID)
	require.NoError(t, err)
	require.False(t, got.CollateralWithdrawn)
}

func TestVaultCannotBeDrainedWithoutAuthority(t *testing.T) {
	f := newFixture(t)
	ch := f.create(t, 5)
	_, err := f.svc.LockCollateral(f.ctx, f.buyer, ch.ID, 100)
	require.NoError(t, err)

	err = f.store.InTx(f.ctx, func(tx repositories.Tx) error {
		return tx.TransferNative(f.ctx, ch.VaultAddress, f.seller, 100)
	})
	require.ErrorIs(t, err, models.ErrUnauthorized)
	require.Equal(t, uint64(100), f.native(ch.VaultAddress))
}

func TestGetChannel_Visibility(t *testing.T) {
	f := newFixture(t)
	ch := f.create(t, 5)
	admin := newAddr(t)
	f.cfg.AdminAddresses = []keys.Address{admin}

	for _, viewer := range []keys.Address{f.buyer, f.seller, admin} {
		got, err := f.svc.GetChannel(f.ctx, viewer, ch.ID)
		require.NoError(t, err)
		require.Equal(t, ch.ID, got.ID)
	}

	_, err := f.svc.GetChannel(f.ctx, newAddr(t), ch.ID)
	require.ErrorIs(t, err, models.ErrUnauthorized)

	_, err = f.svc.ChannelHistory(f.ctx, newAddr(t), ch.ID, 0, 0)
	require.ErrorIs(t, err, models.ErrUnauthorized)

	_, err = f.svc.GetChannel(f.ctx, f.buyer, uuid.New())
	require.ErrorIs(t, err, models.ErrChannelNotFound)
}

func TestListChannels_ByRole(t *testing.T) {
	f := newFixture(t)
	f.create(t, 5)

	asBuyer, err := f.svc.ListChannels(f.ctx, f.buyer, ListChannelsInput{Role: "buyer"})
	require.NoError(t, err)
	require.Len(t, asBuyer, 1)

	asSeller, err := f.svc.ListChannels(f.ctx, f.buyer, ListChannelsInput{Role: "seller"})
	require.NoError(t, err)
	require.Empty(t, asSeller)

	either, err := f.svc.ListChannels(f.ctx, f.seller, ListChannelsInput{})
	require.NoError(t, err)
	require.Len(t, either, 1)

	locked := true
	lockedOnly, err := f.svc.ListChannels(f.ctx, f.seller, ListChannelsInput{Locked: &locked})
	require.NoError(t, err)
	require.Empty(t, lockedOnly)

	_, err = f.svc.ListChannels(f.ctx, f.buyer, ListChannelsInput{Role: "admin"})
	require.ErrorIs(t, err, ErrInvalidFilter)
}

func TestConcurrentPaymentsNeverOverpay(t *testing.T) {
	f := newFixture(t)
	ch := f.create(t, 10)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.svc.PayAmount(f.ctx, f.buyer, ch.ID, 1, f.buyerTokens)
		}()
	}
	wg.Wait()

	got, err := f.store.GetChannel(f.ctx, ch.ID)
	require.NoError(t, err)
	require.Equal(t, uint64(10), got.AmountPaid)
	require.Equal(t, uint64(10), f.tokens(t, f.sellerPayout))
}

func TestMutationsReturnWhileSubscriberIsStuck(t *testing.T) {
	f := newFixture(t)
	bus := events.NewMemoryBus()
	release := make(chan struct{})
	defer close(release)
	require.NoError(t, bus.Subscribe(f.ctx, events.StreamChannel, func(events.Event) { <-release }))
	svc := NewChannelService(f.store, bus, f.cfg, zap.NewNop())

	in := f.input(t, 2)
	done := make(chan error, 1)
	go func() {
		ch, err := svc.CreateChannel(f.ctx, f.buyer, in)
		if err != nil {
			done <- err
			return
		}
		if _, err = svc.LockCollateral(f.ctx, f.buyer, ch.ID, 10); err != nil {
			done <- err
			return
		}
		if _, err = svc.PayAmount(f.ctx, f.buyer, ch.ID, 2, f.buyerTokens); err != nil {
			done <- err
			return
		}
		_, err = svc.WithdrawLocked(f.ctx, f.buyer, ch.ID)
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("channel operations waited for event delivery")
	}
}
