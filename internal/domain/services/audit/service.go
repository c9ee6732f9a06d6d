package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/antidetect/dashboard_service/internal/domain/entities"
	"github.com/antidetect/dashboard_service/internal/domain/repositories"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type contextKey string

const (
	ContextKeyIPAddress contextKey = "audit_ip_address"
	ContextKeyUserAgent contextKey = "audit_user_agent"
)

// Integrity statuses
const (
	IntegrityVerified    = "verified"
	IntegrityCompromised = "compromised"
	IntegrityChainBroken = "chain_broken"
)

type Service struct {
	repo        repositories.AuditRepository
	logger      *zap.Logger
	wormEnabled bool
	// chainMu serializes writes so each record links to the one before it
	chainMu  sync.Mutex
	lastHash string
}

func NewService(repo repositories.AuditRepository, logger *zap.Logger) *Service {
	return &Service{
		repo:        repo,
		logger:      logger,
		wormEnabled: true,
	}
}

// EnableWORM turns hash chaining of new records on or off
func (s *Service) EnableWORM(enabled bool) {
	s.chainMu.Lock()
	defer s.chainMu.Unlock()
	s.wormEnabled = enabled
}

// Initialize resumes the hash chain from the newest stored record
func (s *Service) Initialize(ctx context.Context) error {
	hash, err := s.repo.GetLastHash(ctx)
	if err != nil {
		return fmt.Errorf("failed to load last audit hash: %w", err)
	}
	s.chainMu.Lock()
	s.lastHash = hash
	s.chainMu.Unlock()
	return nil
}

func (s *Service) Log(ctx context.Context, userID string, action entities.AuditAction, resource, resourceID string, metadata map[string]interface{}) error {
	log := &entities.AuditLog{
		ID:         uuid.New(),
		UserID:     userID,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		IPAddress:  getStringFromContext(ctx, ContextKeyIPAddress),
		UserAgent:  getStringFromContext(ctx, ContextKeyUserAgent),
		Metadata:   metadata,
		// postgres keeps microseconds; the hash must survive a round trip
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}

	s.chainMu.Lock()
	defer s.chainMu.Unlock()

	if s.wormEnabled {
		log.SetIntegrityFields(s.lastHash)
	}

	if err := s.repo.Create(ctx, log); err != nil {
		s.logger.Error("failed to create audit log",
			zap.Error(err),
			zap.String("action", string(action)),
			zap.String("user_id", userID),
		)
		return err
	}

	if s.wormEnabled {
		s.lastHash = log.CurrentHash
	}

	s.logger.Debug("Audit log created",
		zap.String("action", string(action)),
		zap.String("user_id", userID),
		zap.String("resource", resource),
		zap.String("hash", log.CurrentHash),
	)

	return nil
}

func (s *Service) LogDeposit(ctx context.Context, userID, transactionID, amount, method, status string) error {
	return s.Log(ctx, userID, entities.AuditActionDeposit, "deposit", transactionID, map[string]interface{}{
		"amount": amount,
		"method": method,
		"status": status,
	})
}

func (s *Service) LogPaymentConfirmation(ctx context.Context, userID, transactionID string, success bool, message string) error {
	return s.Log(ctx, userID, entities.AuditActionPaymentConfirm, "deposit", transactionID, map[string]interface{}{
		"success": success,
		"message": message,
	})
}

func (s *Service) LogStatusTransition(ctx context.Context, userID, entityID, entityType, fromStatus, toStatus, triggeredBy string) error {
	s.logger.Info("Status transition",
		zap.String("entity_id", entityID),
		zap.String("entity_type", entityType),
		zap.String("from_status", fromStatus),
		zap.String("to_status", toStatus),
		zap.String("triggered_by", triggeredBy),
	)
	return s.Log(ctx, userID, entities.AuditActionStatusTransition, entityType, entityID, map[string]interface{}{
		"from_status":  fromStatus,
		"to_status":    toStatus,
		"triggered_by": triggeredBy,
	})
}

func (s *Service) LogLogin(ctx context.Context, userID string, success bool) error {
	status := "success"
	if !success {
		status = "failed"
	}
	return s.Log(ctx, userID, entities.AuditActionLogin, "session", "", map[string]interface{}{
		"status": status,
	})
}

func (s *Service) LogLogout(ctx context.Context, userID string) error {
	return s.Log(ctx, userID, entities.AuditActionLogout, "session", "", nil)
}

func (s *Service) LogSettingsChange(ctx context.Context, userID string, fields []string) error {
	return s.Log(ctx, userID, entities.AuditActionSettingsChange, "profile", userID, map[string]interface{}{
		"fields": fields,
	})
}

func (s *Service) LogPasswordChange(ctx context.Context, userID string) error {
	return s.Log(ctx, userID, entities.AuditActionPasswordChange, "user", userID, nil)
}

func (s *Service) LogMFAEnable(ctx context.Context, userID string, method string) error {
	return s.Log(ctx, userID, entities.AuditActionMFAEnable, "user", userID, map[string]interface{}{
		"method": method,
	})
}

func (s *Service) GetUserAuditLogs(ctx context.Context, userID string, limit, offset int) ([]*entities.AuditLog, int64, error) {
	filter := repositories.AuditLogFilter{
		UserID: &userID,
		Limit:  limit,
		Offset: offset,
	}

	logs, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	count, err := s.repo.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	return logs, count, nil
}

// VerifyIntegrity recomputes hashes and links for records in the period, oldest first
func (s *Service) VerifyIntegrity(ctx context.Context, startTime, endTime time.Time) (*IntegrityVerificationResult, error) {
	filter := repositories.AuditLogFilter{
		StartDate: &startTime,
		EndDate:   &endTime,
		Limit:     10000,
		Offset:    0,
		Ascending: true,
	}

	logs, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve audit logs: %w", err)
	}

	result := &IntegrityVerificationResult{
		PeriodStart:  startTime,
		PeriodEnd:    endTime,
		TotalLogs:    int64(len(logs)),
		VerifiedAt:   time.Now().UTC(),
		BrokenLinks:  []string{},
		TamperedLogs: []string{},
	}

	// The first record may link to one outside the period
	var previousHash string
	for i, log := range logs {
		if log.CurrentHash != log.CalculateHash() {
			result.TamperedLogs = append(result.TamperedLogs, log.ID.String())
		}
		if i > 0 && log.PreviousHash != previousHash {
			result.BrokenLinks = append(result.BrokenLinks, log.ID.String())
		}
		previousHash = log.CurrentHash
	}

	switch {
	case len(result.TamperedLogs) > 0:
		result.IntegrityStatus = IntegrityCompromised
	case len(result.BrokenLinks) > 0:
		result.IntegrityStatus = IntegrityChainBroken
	default:
		result.IntegrityStatus = IntegrityVerified
	}

	s.logger.Info("Integrity verification completed",
		zap.String("status", result.IntegrityStatus),
		zap.Int64("total_logs", result.TotalLogs),
		zap.Int("tampered_count", len(result.TamperedLogs)),
		zap.Int("broken_links", len(result.BrokenLinks)),
	)

	return result, nil
}

type IntegrityVerificationResult struct {
	PeriodStart     time.Time `json:"period_start"`
	PeriodEnd       time.Time `json:"period_end"`
	TotalLogs       int64     `json:"total_logs"`
	VerifiedAt      time.Time `json:"verified_at"`
	IntegrityStatus string    `json:"integrity_status"`
	BrokenLinks     []string  `json:"broken_links"`
	TamperedLogs    []string  `json:"tampered_logs"`
}

func WithAuditContext(ctx context.Context, ipAddress, userAgent string) context.Context {
	ctx = context.WithValue(ctx, ContextKeyIPAddress, ipAddress)
	ctx = context.WithValue(ctx, ContextKeyUserAgent, userAgent)
	return ctx
}

func getStringFromContext(ctx context.Context, key contextKey) string {
	if val, ok := ctx.Value(key).(string); ok {
		return val
	}
	return ""
}
