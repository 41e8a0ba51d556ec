package routing

import (
	"time"

	"github.com/routeworks/router/internal/model"
)

// Retryable reports whether a delivery failure of this kind may succeed
// on a later attempt. Only transport-level provider failures and
// unclassified internal errors qualify; configuration, content and
// address problems are deterministic and retrying them wastes the
// budget.
func Retryable(kind model.ErrorKind) bool {
	return kind == model.KindInternal || kind == model.KindProviderRetryable
}

// BudgetRemaining checks both halves of the retry budget: the attempt
// counter against maxRetries and the absolute TTL deadline carried on
// the job (unix millis, zero means no deadline).
func BudgetRemaining(job model.RoutingJob, maxRetries int, now time.Time) bool {
	if job.RetryCount >= maxRetries {
		return false
	}
	if job.TTL > 0 && now.UnixMilli() >= job.TTL {
		return false
	}
	return true
}

// NextAttempt derives the follow-up job for a retryable failure. Every
// field except the counter is carried over byte for byte so the retried
// attempt sees exactly the input the failed one saw.
func NextAttempt(job model.RoutingJob) model.RoutingJob {
	next := job
	next.RetryCount = job.RetryCount + 1
	return next
}
