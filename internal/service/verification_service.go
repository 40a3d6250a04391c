package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clinicore/labflow/internal/domain/labresult"
	"github.com/clinicore/labflow/pkg/metrics"
)

// VerificationService records a clinician's sign-off on an entered result.
type VerificationService struct {
	repo     labresult.Repository
	auditSvc *AuditService
	metrics  *metrics.Collector
	log      *zap.Logger
}

func NewVerificationService(repo labresult.Repository, auditSvc *AuditService, m *metrics.Collector, log *zap.Logger) *VerificationService {
	return &VerificationService{repo: repo, auditSvc: auditSvc, metrics: m, log: log}
}

// Verify marks the result clinician-verified, setting the verifier and
// timestamp in the same update as the flag. Verifying twice is an idempotent
// overwrite: the later sign-off wins and no error is raised.
func (s *VerificationService) Verify(ctx context.Context, resultID uuid.UUID, verifiedByID uuid.UUID, callerRole string, ip string) (*labresult.LabResult, error) {
	result, err := s.repo.Verify(ctx, resultID, verifiedByID, time.Now())
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.ResultsVerifiedTotal.Inc()
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: verifiedByID, UserRole: callerRole,
		Action: "verify", ResourceType: "lab_result", ResourceID: resultID.String(), IPAddress: ip,
	})

	s.log.Info("result verified",
		zap.String("result_id", resultID.String()),
		zap.String("verified_by", verifiedByID.String()),
	)

	return result, nil
}
