package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.RepromptLimit != 3 {
		t.Errorf("RepromptLimit = %d, want 3", cfg.RepromptLimit)
	}
	if cfg.ConversationTTL != 30*time.Minute {
		t.Errorf("ConversationTTL = %s, want 30m", cfg.ConversationTTL)
	}
	if cfg.ClassifierTimeout != 3*time.Second {
		t.Errorf("ClassifierTimeout = %s, want 3s", cfg.ClassifierTimeout)
	}
	if cfg.ConversationTable != "conversations" {
		t.Errorf("ConversationTable = %q, want conversations", cfg.ConversationTable)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("REPROMPT_LIMIT", "5")
	t.Setenv("CONVERSATION_TTL", "1h")
	t.Setenv("USE_MEMORY_QUEUE", "true")
	t.Setenv("ADMIN_GROUP_IDS", "Gadmin1, Gadmin2,")
	t.Setenv("EMPLOYEE_GROUP_IDS", "Gstaff")

	cfg := Load()

	if cfg.Port != "9090" {
		t.Errorf("Port = %q, want 9090", cfg.Port)
	}
	if cfg.RepromptLimit != 5 {
		t.Errorf("RepromptLimit = %d, want 5", cfg.RepromptLimit)
	}
	if cfg.ConversationTTL != time.Hour {
		t.Errorf("ConversationTTL = %s, want 1h", cfg.ConversationTTL)
	}
	if !cfg.UseMemoryQueue {
		t.Error("UseMemoryQueue = false, want true")
	}
	if len(cfg.AdminGroupIDs) != 2 || cfg.AdminGroupIDs[0] != "Gadmin1" || cfg.AdminGroupIDs[1] != "Gadmin2" {
		t.Errorf("AdminGroupIDs = %v, want [Gadmin1 Gadmin2]", cfg.AdminGroupIDs)
	}
	if len(cfg.EmployeeGroupIDs) != 1 || cfg.EmployeeGroupIDs[0] != "Gstaff" {
		t.Errorf("EmployeeGroupIDs = %v, want [Gstaff]", cfg.EmployeeGroupIDs)
	}
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	t.Setenv("WORKER_COUNT", "not-a-number")
	t.Setenv("DISPATCH_TIMEOUT", "soon")

	cfg := Load()

	if cfg.WorkerCount != 2 {
		t.Errorf("WorkerCount = %d, want default 2", cfg.WorkerCount)
	}
	if cfg.DispatchTimeout != 15*time.Second {
		t.Errorf("DispatchTimeout = %s, want default 15s", cfg.DispatchTimeout)
	}
}
