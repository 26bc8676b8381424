// Package storage provides the gorm-backed persistence layer for
// permission and rate-limit configuration
package storage

import "time"

// PermissionModel one explicit allow/deny decision.
// At most one row per (service, subject) pair; absence means
// "inherit from ancestor or default".
type PermissionModel struct {
	Service string `gorm:"primaryKey;size:255"`
	Subject string `gorm:"primaryKey;size:255"`
	Allow   bool
}

// TableName implements gorm schema.Tabler
func (PermissionModel) TableName() string {
	return "ac_permission"
}

// RateLimitRuleModel one configured quota.
// TimeSpan is stored in seconds.
type RateLimitRuleModel struct {
	ID        string `gorm:"primaryKey;size:16"`
	Subject   string `gorm:"size:255;index:idx_ac_rule_subject_service"`
	Service   string `gorm:"size:255;index:idx_ac_rule_subject_service"`
	TimeSpan  int64
	Limit     int64 `gorm:"column:quota"`
	Overwrite bool

	Tokens []RateLimitTokenModel `gorm:"foreignKey:RuleID;constraint:OnDelete:CASCADE"`
}

// TableName implements gorm schema.Tabler
func (RateLimitRuleModel) TableName() string {
	return "ac_rate_limit_rule"
}

// RateLimitTokenModel one recorded usage of a rule's quota
type RateLimitTokenModel struct {
	ID          string `gorm:"primaryKey;size:36"`
	RuleID      string `gorm:"size:16;index:idx_ac_token_rule_id"`
	User        string `gorm:"column:token_user;size:255"`
	AcquireTime time.Time
	ExpireTime  time.Time `gorm:"index:idx_ac_token_expire_time"`
}

// TableName implements gorm schema.Tabler
func (RateLimitTokenModel) TableName() string {
	return "ac_rate_limit_token"
}

// Models returns everything the manager auto-migrates
func Models() []interface{} {
	return []interface{}{
		&PermissionModel{},
		&RateLimitRuleModel{},
		&RateLimitTokenModel{},
	}
}
