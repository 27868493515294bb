package rpc

import "context"

// ReportError injects an external report_error threat entry for serverUUID
// in groupID: it contributes to the failure detector's notification-count
// threshold without forcing an immediate FAULTY transition.
func (s *Service) ReportError(ctx context.Context, groupID, serverUUID, reporter string) Envelope {
	group, err := s.groupViews(ctx, groupID)
	if err != nil {
		return s.errEnvelope(err)
	}
	if err := s.detector.ReportError(group, serverUUID, reporter); err != nil {
		return s.errEnvelope(err)
	}
	return s.ok()
}

// ReportFailure injects an external report_failure threat entry: it marks
// serverUUID FAULTY (and escalates to failover if it was the primary)
// immediately, bypassing the threshold check.
func (s *Service) ReportFailure(ctx context.Context, groupID, serverUUID, reporter string) Envelope {
	group, err := s.groupViews(ctx, groupID)
	if err != nil {
		return s.errEnvelope(err)
	}
	if err := s.detector.ReportFailure(group, serverUUID, reporter); err != nil {
		return s.errEnvelope(err)
	}
	return s.ok()
}
