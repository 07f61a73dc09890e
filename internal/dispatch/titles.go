package dispatch

import "pushdispatch/internal/types"

// TitleFor maps a notification type to the push title shown to the user.
// Unknown types get a generic title so a new producer-side type never blocks
// delivery.
func TitleFor(t types.NotificationType) string {
	switch t {
	case types.TypeJobAssignment:
		return "New Job Assignment"
	case types.TypeJobReassignment:
		return "Job Reassigned"
	case types.TypeJobConfirmation:
		return "Job Confirmed"
	case types.TypeJobCancellation, types.TypeJobCancelled:
		return "Job Cancelled"
	case types.TypeJobStatusChange:
		return "Job Status Updated"
	case types.TypePaymentReminder:
		return "Payment Reminder"
	case types.TypeSystemAlert:
		return "System Alert"
	case types.TypeJobStart:
		return "Job Started"
	case types.TypeStepCompletion:
		return "Driver Update"
	case types.TypeJobCompletion:
		return "Job Completed"
	case types.TypeDeadlineWarning90:
		return "Job Start Warning"
	case types.TypeDeadlineWarning60:
		return "Job Start Urgent Warning"
	default:
		return "New Notification"
	}
}

// ActionFor maps a notification type to the client-side action tag carried in
// the message data. Unknown types pass through unchanged.
func ActionFor(t types.NotificationType) string {
	switch t {
	case types.TypeJobAssignment:
		return "new_job_assigned"
	case types.TypeJobReassignment:
		return "job_reassigned"
	case types.TypeJobCancellation, types.TypeJobCancelled:
		return "job_cancelled"
	case types.TypeJobStatusChange,
		types.TypeJobStart,
		types.TypeStepCompletion,
		types.TypeJobCompletion,
		types.TypeJobConfirmation,
		types.TypeDeadlineWarning90,
		types.TypeDeadlineWarning60:
		return "job_status_changed"
	case types.TypePaymentReminder:
		return "payment_reminder"
	case types.TypeSystemAlert:
		return "system_alert"
	default:
		return string(t)
	}
}
