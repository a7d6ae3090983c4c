package repositories

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/collateral-pay/backend/internal/keys"
	"github.com/collateral-pay/backend/internal/models"
	"github.com/collateral-pay/backend/internal/vault"
	"github.com/google/uuid"
)

// MemStore is an in-process Store and ChallengeStore. InTx works on a copy of
// the state and swaps it in only when fn returns nil, so failed operations
// leave nothing behind. All operations are serialized by one mutex.
type MemStore struct {
	mu         sync.Mutex
	state      *memState
	challenges map[string]*models.AuthChallenge
	now        func() time.Time
}

type memState struct {
	channels map[uuid.UUID]*models.PaymentChannel
	vaults   map[keys.Address]uuid.UUID
	native   map[keys.Address]uint64
	tokens   map[keys.Address]models.TokenAccount
	audit    []models.AuditLog
}

func NewMemStore() *MemStore {
	return &MemStore{
		state: &memState{
			channels: make(map[uuid.UUID]*models.PaymentChannel),
			vaults:   make(map[keys.Address]uuid.UUID),
			native:   make(map[keys.Address]uint64),
			tokens:   make(map[keys.Address]models.TokenAccount),
		},
		challenges: make(map[string]*models.AuthChallenge),
		now:        time.Now,
	}
}

func (st *memState) clone() *memState {
	cp := &memState{
		channels: make(map[uuid.UUID]*models.PaymentChannel, len(st.channels)),
		vaults:   make(map[keys.Address]uuid.UUID, len(st.vaults)),
		native:   make(map[keys.Address]uint64, len(st.native)),
		tokens:   make(map[keys.Address]models.TokenAccount, len(st.tokens)),
		audit:    append([]models.AuditLog(nil), st.audit...),
	}
	for id, ch := range st.channels {
		cp.channels[id] = ch.Clone()
	}
	for k, v := range st.vaults {
		cp.vaults[k] = v
	}
	for k, v := range st.native {
		cp.native[k] = v
	}
	for k, v := range st.tokens {
		cp.tokens[k] = v
	}
	return cp
}

// SeedNative sets a native balance. The ledger is populated by the execution
// environment; this exists for tests and local runs.
func (s *MemStore) SeedNative(addr keys.Address, balance uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.native[addr] = balance
}

// SeedTokenAccount creates or replaces a token account.
func (s *MemStore) SeedTokenAccount(acc models.TokenAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.tokens[acc.Address] = acc
}

func (s *MemStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(&memTx{st: work, now: s.now}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *MemStore) GetChannel(ctx context.Context, id uuid.UUID) (*models.PaymentChannel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.state.channels[id]
	if !ok {
		return nil, models.ErrChannelNotFound
	}
	return ch.Clone(), nil
}

func (s *MemStore) ListChannels(ctx context.Context, filter models.ChannelFilter) ([]models.PaymentChannel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.PaymentChannel
	for _, ch := range s.state.channels {
		if filter.Buyer != nil && ch.Buyer != *filter.Buyer {
			continue
		}
		if filter.Seller != nil && ch.Seller != *filter.Seller {
			continue
		}
		if filter.Party != nil && !ch.IsParty(*filter.Party) {
			continue
		}
		if filter.Locked != nil && ch.CollateralLocked != *filter.Locked {
			continue
		}
		if filter.After != nil && !cursorLess(filter.After.CreatedAt, filter.After.ID, ch) {
			continue
		}
		out = append(out, *ch)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	if filter.After != nil {
		sort.Slice(out, func(i, j int) bool {
			return cursorLess(out[i].CreatedAt, out[i].ID, &out[j])
		})
		if len(out) > limit {
			out = out[:limit]
		}
		return out, nil
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Offset >= len(out) {
		return nil, nil
	}
	out = out[filter.Offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// cursorLess: (createdAt, id) < (ch.CreatedAt, ch.ID), uuid сравнивается побайтно как в Postgres.
func cursorLess(createdAt time.Time, id uuid.UUID, ch *models.PaymentChannel) bool {
	if !createdAt.Equal(ch.CreatedAt) {
		return createdAt.Before(ch.CreatedAt)
	}
	return bytes.Compare(id[:], ch.ID[:]) < 0
}

func (s *MemStore) ListAudit(ctx context.Context, channelID uuid.UUID, limit, offset int) ([]models.AuditLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 50
	}
	var out []models.AuditLog
	for _, l := range s.state.audit {
		if l.ChannelID == channelID {
			out = append(out, l)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemStore) IsVaultBound(ctx context.Context, vaultAddr keys.Address) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.state.vaults[vaultAddr]
	return ok, nil
}

func (s *MemStore) NativeBalance(ctx context.Context, addr keys.Address) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.native[addr], nil
}

func (s *MemStore) GetTokenAccount(ctx context.Context, addr keys.Address) (*models.TokenAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.state.tokens[addr]
	if !ok {
		return nil, models.ErrAccountNotFound
	}
	return &acc, nil
}

// --- Challenges ---

func (s *MemStore) CreateChallenge(ctx context.Context, addr keys.Address, ttl time.Duration) (*models.AuthChallenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	c := &models.AuthChallenge{
		ID:        uuid.New(),
		Address:   addr,
		Challenge: generateNonce(32),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	s.challenges[c.Challenge] = c
	cp := *c
	return &cp, nil
}

func (s *MemStore) ConsumeChallenge(ctx context.Context, addr keys.Address, challenge string) (*models.AuthChallenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.challenges[challenge]
	if !ok || c.Used || c.Address != addr || !s.now().Before(c.ExpiresAt) {
		return nil, ErrChallengeInvalid
	}
	c.Used = true
	cp := *c
	return &cp, nil
}

func (s *MemStore) PurgeExpiredChallenges(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	now := s.now()
	for k, c := range s.challenges {
		if c.Used || c.ExpiresAt.Before(now) {
			delete(s.challenges, k)
			n++
		}
	}
	return n, nil
}

type memTx struct {
	st  *memState
	now func() time.Time
}

func (t *memTx) InsertChannel(ctx context.Context, ch *models.PaymentChannel) error {
	if _, ok := t.st.vaults[ch.VaultAddress]; ok {
		return models.ErrVaultInUse
	}
	ch.ID = uuid.New()
	ch.CreatedAt = t.now()
	ch.UpdatedAt = ch.CreatedAt
	t.st.channels[ch.ID] = ch.Clone()
	t.st.vaults[ch.VaultAddress] = ch.ID
	return nil
}

func (t *memTx) GetChannelForUpdate(ctx context.Context, id uuid.UUID) (*models.PaymentChannel, error) {
	ch, ok := t.st.channels[id]
	if !ok {
		return nil, models.ErrChannelNotFound
	}
	return ch.Clone(), nil
}

func (t *memTx) UpdateChannel(ctx context.Context, ch *models.PaymentChannel) error {
	cur, ok := t.st.channels[ch.ID]
	if !ok {
		return fmt.Errorf("update channel %s: %w", ch.ID, models.ErrChannelNotFound)
	}
	next := cur.Clone()
	next.AmountPaid = ch.AmountPaid
	next.CollateralLocked = ch.CollateralLocked
	next.CollateralWithdrawn = ch.CollateralWithdrawn
	next.LockedAmount = ch.LockedAmount
	next.UpdatedAt = t.now()
	ch.UpdatedAt = next.UpdatedAt
	t.st.channels[ch.ID] = next
	return nil
}

func (t *memTx) VaultBound(ctx context.Context, vaultAddr keys.Address) (bool, error) {
	_, ok := t.st.vaults[vaultAddr]
	return ok, nil
}

func (t *memTx) NativeBalance(ctx context.Context, addr keys.Address) (uint64, error) {
	return t.st.native[addr], nil
}

func (t *memTx) TransferNative(ctx context.Context, from, to keys.Address, amount uint64) error {
	if !from.IsOnCurve() {
		return fmt.Errorf("native transfer from derived address %s without authority: %w", from, models.ErrUnauthorized)
	}
	return t.moveNative(from, to, amount)
}

func (t *memTx) TransferNativeSigned(ctx context.Context, authority vault.Authority, to keys.Address, amount uint64) error {
	if !authority.Valid() {
		return fmt.Errorf("invalid vault authority: %w", models.ErrUnauthorized)
	}
	return t.moveNative(authority.Address(), to, amount)
}

func (t *memTx) moveNative(from, to keys.Address, amount uint64) error {
	if amount > math.MaxInt64 {
		return models.ErrInvalidAmount
	}
	if amount == 0 {
		return nil
	}
	if t.st.native[from] < amount {
		return fmt.Errorf("native transfer of %d from %s: %w", amount, from, models.ErrInsufficientFunds)
	}
	t.st.native[from] -= amount
	t.st.native[to] += amount
	return nil
}

func (t *memTx) TransferToken(ctx context.Context, from, to keys.Address, amount uint64, authority keys.Address) error {
	if amount > math.MaxInt64 {
		return models.ErrInvalidAmount
	}
	src, ok := t.st.tokens[from]
	if !ok {
		return fmt.Errorf("source token account %s: %w", from, models.ErrAccountNotFound)
	}
	dst, ok := t.st.tokens[to]
	if !ok {
		return fmt.Errorf("destination token account %s: %w", to, models.ErrAccountNotFound)
	}
	if src.Owner != authority {
		return fmt.Errorf("token account %s not owned by %s: %w", from, authority, models.ErrUnauthorized)
	}
	if src.Mint != dst.Mint {
		return models.ErrMintMismatch
	}
	if src.Balance < amount {
		return fmt.Errorf("token transfer of %d from %s: %w", amount, from, models.ErrInsufficientFunds)
	}
	if amount == 0 || from == to {
		return nil
	}
	src.Balance -= amount
	dst.Balance += amount
	t.st.tokens[from] = src
	t.st.tokens[to] = dst
	return nil
}

func (t *memTx) LogAudit(ctx context.Context, entry models.AuditLog) error {
	entry.ID = uuid.New()
	entry.CreatedAt = t.now()
	t.st.audit = append(t.st.audit, entry)
	return nil
}
