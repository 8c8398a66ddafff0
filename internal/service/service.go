// Package service реализует размещение и разрешение коротких ссылок.
package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tempizhere/redirector/internal/classifier"
	"github.com/tempizhere/redirector/internal/models"
	"github.com/tempizhere/redirector/internal/repository"
	"github.com/tempizhere/redirector/internal/shortcode"
	"go.uber.org/zap"
)

// MaxAttempts ограничивает число кандидатов при генерации кода
const MaxAttempts = 5

var subdomainPattern = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?$`)

// CodeGenerator выдаёт случайные коды-кандидаты
type CodeGenerator interface {
	Generate() (string, error)
}

// Service реализует логику работы с короткими ссылками
type Service struct {
	store      repository.Store
	generator  CodeGenerator
	baseURL    *url.URL
	rootDomain string
	logger     *zap.Logger
	now        func() time.Time
}

// Option настраивает Service
type Option func(*Service)

// WithGenerator подменяет генератор кодов
func WithGenerator(g CodeGenerator) Option {
	return func(s *Service) {
		s.generator = g
	}
}

// WithClock подменяет источник времени для проверки срока действия во входных данных
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService создаёт новый экземпляр Service
func NewService(store repository.Store, baseURL, rootDomain string, logger *zap.Logger, opts ...Option) *Service {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || base.Host == "" {
		base = &url.URL{Scheme: "http", Host: rootDomain}
	}
	s := &Service{
		store:      store,
		generator:  shortcode.NewGenerator(),
		baseURL:    base,
		rootDomain: strings.ToLower(rootDomain),
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ShortURL строит публичный адрес ссылки с учётом поддомена
func (s *Service) ShortURL(m *models.Mapping) string {
	u := *s.baseURL
	if !m.IsGlobal() {
		host := m.Subdomain + "." + s.rootDomain
		if port := s.baseURL.Port(); port != "" {
			host = net.JoinHostPort(host, port)
		}
		u.Host = host
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + m.Shortcode
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

func validateDestination(raw string) (string, error) {
	dest := strings.TrimSpace(raw)
	if dest == "" {
		return "", newError(KindValidation, ReasonURLRequired)
	}
	u, err := url.Parse(dest)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", newError(KindValidation, ReasonURLInvalid)
	}
	return dest, nil
}

func validateSubdomain(raw string, owner *models.Owner) (string, error) {
	sub := strings.ToLower(strings.TrimSpace(raw))
	if sub == models.GlobalSubdomain {
		return sub, nil
	}
	if !subdomainPattern.MatchString(sub) || strings.Contains(sub, "--") {
		return "", newError(KindValidation, ReasonSubdomainInvalid)
	}
	if classifier.IsReservedSubdomain(sub) {
		return "", newError(KindValidation, ReasonSubdomainReserved)
	}
	if owner == nil {
		return "", newError(KindValidation, ReasonSubdomainOwner)
	}
	return sub, nil
}

func ownerID(owner *models.Owner) *string {
	if owner == nil {
		return nil
	}
	id := owner.ID
	return &id
}

// CreateMapping проверяет запрос и размещает новую ссылку.
// Ошибки отказа имеют тип *AllocationError.
func (s *Service) CreateMapping(ctx context.Context, req models.CreateRequest, owner *models.Owner) (*models.Mapping, error) {
	dest, err := validateDestination(req.URL)
	if err != nil {
		return nil, err
	}
	sub, err := validateSubdomain(req.Subdomain, owner)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if req.ExpiresAt != nil && !req.ExpiresAt.After(now) {
		return nil, newError(KindValidation, ReasonExpiryPast)
	}

	custom := shortcode.Normalize(req.Shortcode)
	if req.Shortcode != "" {
		if err := shortcode.Validate(custom); err != nil {
			var verr *shortcode.ValidationError
			if errors.As(err, &verr) {
				return nil, newError(KindValidation, verr.Reason)
			}
			return nil, newError(KindValidation, err.Error())
		}
	}

	if err := s.precheckQuota(ctx, owner); err != nil {
		return nil, err
	}

	m := &models.Mapping{
		ID:          uuid.New(),
		Shortcode:   custom,
		Subdomain:   sub,
		Destination: dest,
		OwnerID:     ownerID(owner),
		CreatedAt:   now,
		ExpiresAt:   req.ExpiresAt,
	}
	if m.Shortcode != "" {
		return s.insert(ctx, m, owner)
	}
	return s.allocateGenerated(ctx, m, owner)
}

// precheckQuota быстро отклоняет запрос владельца, исчерпавшего лимит.
// Окончательная проверка выполняется атомарной вставкой.
func (s *Service) precheckQuota(ctx context.Context, owner *models.Owner) error {
	if owner == nil {
		return nil
	}
	count, err := s.store.CountOwnerMappings(ctx, owner.ID)
	if err != nil {
		return fmt.Errorf("count owner mappings: %w", err)
	}
	if count >= owner.Quota {
		s.logger.Info("Owner quota reached", zap.String("owner_id", owner.ID), zap.Int("count", count), zap.Int("quota", owner.Quota))
		return quotaError(owner.Quota)
	}
	return nil
}

func (s *Service) insert(ctx context.Context, m *models.Mapping, owner *models.Owner) (*models.Mapping, error) {
	quota := 0
	if owner != nil {
		quota = owner.Quota
	}
	n, err := s.store.InsertMappingIfUnderQuota(ctx, m, quota)
	if errors.Is(err, repository.ErrConflict) {
		return nil, newError(KindConflict, ReasonShortcodeTaken)
	}
	if err != nil {
		return nil, fmt.Errorf("insert mapping: %w", err)
	}
	if n == 0 {
		return nil, quotaError(quota)
	}
	s.logger.Info("Mapping created",
		zap.String("id", m.ID.String()),
		zap.String("shortcode", m.Shortcode),
		zap.String("subdomain", m.Subdomain))
	return m, nil
}

// allocateGenerated подбирает свободный код в поддомене ссылки и вставляет её
func (s *Service) allocateGenerated(ctx context.Context, m *models.Mapping, owner *models.Owner) (*models.Mapping, error) {
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		code, err := s.generator.Generate()
		if err != nil {
			return nil, fmt.Errorf("generate shortcode: %w", err)
		}
		if shortcode.IsReserved(code) {
			s.logger.Debug("Generated shortcode is reserved", zap.String("shortcode", code), zap.Int("attempt", attempt))
			continue
		}
		exists, err := s.store.MappingExists(ctx, code, m.Subdomain)
		if err != nil {
			return nil, err
		}
		if exists {
			s.logger.Debug("Generated shortcode collision", zap.String("shortcode", code), zap.Int("attempt", attempt))
			continue
		}

		candidate := *m
		candidate.Shortcode = code
		created, err := s.insert(ctx, &candidate, owner)
		if errors.Is(err, ErrShortcodeTaken) {
			// код заняли между проверкой и вставкой
			continue
		}
		return created, err
	}

	s.logger.Warn("Shortcode allocation exhausted", zap.String("subdomain", m.Subdomain), zap.Int("attempts", MaxAttempts))
	return nil, newError(KindExhaustion, ReasonExhausted)
}

// Shortest возвращает глобальную ссылку владельца на тот же адрес, что и ссылка id,
// создавая её при необходимости.
func (s *Service) Shortest(ctx context.Context, id uuid.UUID, owner *models.Owner) (*models.Mapping, error) {
	if owner == nil {
		return nil, newError(KindNotFound, ReasonNotFound)
	}
	src, err := s.store.GetMapping(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if src == nil || !src.OwnedBy(owner.ID) || !src.IsLive(now) {
		return nil, newError(KindNotFound, ReasonNotFound)
	}
	if src.IsGlobal() {
		return src, nil
	}

	existing, err := s.store.FindOwnerMappingByDestination(ctx, owner.ID, src.Destination, models.GlobalSubdomain)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	if err := s.precheckQuota(ctx, owner); err != nil {
		return nil, err
	}

	m := &models.Mapping{
		ID:          uuid.New(),
		Subdomain:   models.GlobalSubdomain,
		Destination: src.Destination,
		OwnerID:     ownerID(owner),
		CreatedAt:   now,
		ExpiresAt:   src.ExpiresAt,
	}

	taken, err := s.store.MappingExists(ctx, src.Shortcode, models.GlobalSubdomain)
	if err != nil {
		return nil, err
	}
	if !taken {
		m.Shortcode = src.Shortcode
		created, err := s.insert(ctx, m, owner)
		if !errors.Is(err, ErrShortcodeTaken) {
			return created, err
		}
		s.logger.Debug("Source shortcode taken concurrently, generating", zap.String("shortcode", src.Shortcode))
		m.ID = uuid.New()
		m.Shortcode = ""
	}
	return s.allocateGenerated(ctx, m, owner)
}

// Resolve ищет действующую ссылку; false означает, что ссылки нет или её срок истёк
func (s *Service) Resolve(ctx context.Context, lookup models.Lookup) (*models.Mapping, bool, error) {
	m, err := s.store.FindMapping(ctx, lookup.Shortcode, lookup.Subdomain)
	if err != nil {
		return nil, false, err
	}
	if m == nil {
		return nil, false, nil
	}
	return m, true, nil
}

// DeleteMapping удаляет ссылку владельца вместе с историей переходов
func (s *Service) DeleteMapping(ctx context.Context, id uuid.UUID, owner *models.Owner) error {
	if owner == nil {
		return newError(KindNotFound, ReasonNotFound)
	}
	err := s.store.DeleteMapping(ctx, id, owner.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return newError(KindNotFound, ReasonNotFound)
	}
	if err != nil {
		return fmt.Errorf("delete mapping: %w", err)
	}
	s.logger.Info("Mapping deleted", zap.String("id", id.String()), zap.String("owner_id", owner.ID))
	return nil
}

// Ping проверяет доступность хранилища
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
