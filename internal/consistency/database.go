package consistency

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/veridata/quality-engine/internal/models"
)

// QueryRunner executes scalar queries against a relational store
type QueryRunner interface {
	QueryScalar(ctx context.Context, query string, args ...interface{}) (interface{}, error)
}

// ResultPredicate judges a query result when a fixed expected value is not
// expressive enough
type ResultPredicate func(result interface{}) bool

// DatabaseCheck is a registered invariant query
type DatabaseCheck struct {
	Name       string
	Connection string
	Query      string
	Expected   interface{}
	Predicate  ResultPredicate
	Critical   bool
}

// TableRelationship declares a parent/child table pair for orphan detection
type TableRelationship struct {
	ParentTable string
	ParentKey   string
	ChildTable  string
	ForeignKey  string
}

// DatabaseValidator runs registered invariant queries and foreign-key
// orphan checks against named connections.
type DatabaseValidator struct {
	logger      *zap.Logger
	mu          sync.RWMutex
	connections map[string]QueryRunner
	checks      map[string]*DatabaseCheck
}

// NewDatabaseValidator creates a database consistency validator
func NewDatabaseValidator(logger *zap.Logger) *DatabaseValidator {
	return &DatabaseValidator{
		logger:      logger,
		connections: make(map[string]QueryRunner),
		checks:      make(map[string]*DatabaseCheck),
	}
}

// RegisterConnection registers a query runner under a connection name
func (v *DatabaseValidator) RegisterConnection(name string, runner QueryRunner) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.connections[name] = runner
}

// RegisterCheck registers a named invariant query
func (v *DatabaseValidator) RegisterCheck(check *DatabaseCheck) error {
	if check == nil || check.Name == "" {
		return fmt.Errorf("check must have a name")
	}
	if check.Expected == nil && check.Predicate == nil {
		return fmt.Errorf("check '%s' needs an expected value or a predicate", check.Name)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.checks[check.Name] = check
	return nil
}

// RunChecks executes the named checks. An empty name list runs every
// registered check.
func (v *DatabaseValidator) RunChecks(ctx context.Context, names []string) *models.ValidationResult {
	result := models.NewValidationResult()

	v.mu.RLock()
	if len(names) == 0 {
		for name := range v.checks {
			names = append(names, name)
		}
	}
	checks := make([]*DatabaseCheck, 0, len(names))
	for _, name := range names {
		if check, exists := v.checks[name]; exists {
			checks = append(checks, check)
		} else {
			result.AddError(fmt.Sprintf("database check not found: %s", name))
		}
	}
	v.mu.RUnlock()

	for _, check := range checks {
		v.runCheck(ctx, check, result)
	}

	return result
}

func (v *DatabaseValidator) runCheck(ctx context.Context, check *DatabaseCheck, result *models.ValidationResult) {
	v.mu.RLock()
	runner := v.connections[check.Connection]
	v.mu.RUnlock()

	if runner == nil {
		result.AddError(fmt.Sprintf("check '%s': no connection registered for: %s", check.Name, check.Connection))
		return
	}

	value, err := runner.QueryScalar(ctx, check.Query)
	if err != nil {
		msg := fmt.Sprintf("check '%s': query failed: %v", check.Name, err)
		if check.Critical {
			result.AddError(msg)
		} else {
			result.AddWarning(msg)
		}
		return
	}

	passed := false
	if check.Predicate != nil {
		passed = check.Predicate(value)
	} else {
		passed = fmt.Sprintf("%v", value) == fmt.Sprintf("%v", check.Expected)
	}

	if !passed {
		msg := fmt.Sprintf("check '%s': unexpected result %v", check.Name, value)
		if check.Critical {
			result.AddError(msg)
		} else {
			result.AddWarning(msg)
		}
	}
}

// ValidateForeignKeyIntegrity issues an orphan-detection query per declared
// relationship and treats any non-zero orphan count as an integrity error
func (v *DatabaseValidator) ValidateForeignKeyIntegrity(ctx context.Context, connection string, relationships []TableRelationship) *models.ValidationResult {
	result := models.NewValidationResult()

	v.mu.RLock()
	runner := v.connections[connection]
	v.mu.RUnlock()

	if runner == nil {
		result.AddError(fmt.Sprintf("no connection registered for: %s", connection))
		return result
	}

	for _, rel := range relationships {
		query := fmt.Sprintf(
			"SELECT COUNT(*) FROM %s child LEFT JOIN %s parent ON child.%s = parent.%s WHERE child.%s IS NOT NULL AND parent.%s IS NULL",
			rel.ChildTable, rel.ParentTable, rel.ForeignKey, rel.ParentKey, rel.ForeignKey, rel.ParentKey)

		value, err := runner.QueryScalar(ctx, query)
		if err != nil {
			result.AddError(fmt.Sprintf(
				"orphan query failed for %s -> %s: %v", rel.ChildTable, rel.ParentTable, err))
			continue
		}

		count, err := toFloat64(value)
		if err != nil {
			result.AddError(fmt.Sprintf(
				"orphan query for %s -> %s returned non-numeric result %v", rel.ChildTable, rel.ParentTable, value))
			continue
		}

		if count > 0 {
			result.AddError(fmt.Sprintf(
				"%d orphaned rows in %s referencing missing %s.%s",
				int64(count), rel.ChildTable, rel.ParentTable, rel.ParentKey))
		}
	}

	return result
}

// SQLAdapter adapts a database/sql connection pool to QueryRunner. The
// postgres driver is loaded by the server entrypoint.
type SQLAdapter struct {
	db *sql.DB
}

// NewSQLAdapter wraps an open connection pool
func NewSQLAdapter(db *sql.DB) *SQLAdapter {
	return &SQLAdapter{db: db}
}

// QueryScalar runs a query expected to return a single value
func (a *SQLAdapter) QueryScalar(ctx context.Context, query string, args ...interface{}) (interface{}, error) {
	var value interface{}
	if err := a.db.QueryRowContext(ctx, query, args...).Scan(&value); err != nil {
		return nil, fmt.Errorf("scalar query failed: %w", err)
	}
	return value, nil
}
