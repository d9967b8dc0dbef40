package repository

import (
	"strings"
	"testing"
)

func TestLikeOperatorByDialect(t *testing.T) {
	if got := likeOperatorByDialect("postgres"); got != "ILIKE" {
		t.Fatalf("postgres want ILIKE got %s", got)
	}
	if got := likeOperatorByDialect("sqlite"); got != "LIKE" {
		t.Fatalf("sqlite want LIKE got %s", got)
	}
	if got := dbDialectName(nil); got != "sqlite" {
		t.Fatalf("nil db should default to sqlite, got %s", got)
	}
}

func TestBuildLikeCondition(t *testing.T) {
	condition, argCount := buildLikeConditionByDialect("postgres", []string{"order_no", " ", "checkout_no"})
	if argCount != 2 {
		t.Fatalf("arg count want 2 got %d", argCount)
	}
	if !strings.Contains(condition, "order_no ILIKE ?") || !strings.Contains(condition, " OR checkout_no ILIKE ?") {
		t.Fatalf("unexpected condition %s", condition)
	}
}

func TestContainsPatternEscapesWildcards(t *testing.T) {
	if got := containsPattern(" 50%_off "); got != `%50\%\_off%` {
		t.Fatalf("unexpected pattern %s", got)
	}
}

func TestRepeatLikeArgs(t *testing.T) {
	args := repeatLikeArgs("%test%", 3)
	if len(args) != 3 {
		t.Fatalf("args len want 3 got %d", len(args))
	}
	for idx, arg := range args {
		if arg != "%test%" {
			t.Fatalf("args[%d] want %%test%% got %v", idx, arg)
		}
	}
}
