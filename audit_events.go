package authcore

const (
	auditEventLoginSuccess       = "login_success"
	auditEventLoginFailure       = "login_failure"
	auditEventTokenRefreshed     = "token_refreshed"
	auditEventTokenReuseDetected = "token_reuse_detected"
	auditEventTokenRevoked       = "token_revoked"
	auditEventFamilyRevoked      = "family_revoked"
	auditEventLogout             = "logout"
	auditEventLogoutAll          = "logout_all"
	auditEventRateLimitTriggered = "rate_limit_triggered"
	auditEventAccountLocked      = "account_locked_rejection"
	auditEventAccountDisabled    = "account_disabled_rejection"
	auditEventStoreUnavailable   = "store_unavailable"
)
