// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package txnoracle

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/txnoracle/pkg/txnoracle/harness"
	"github.com/cockroachdb/txnoracle/pkg/txnoracle/txn"
	"github.com/cockroachdb/txnoracle/pkg/txnoracle/workload"
	"gopkg.in/yaml.v3"
)

// IsolationRandom picks an isolation level per schedule.
const IsolationRandom = "random"

// Oracles that compute the expected result of a schedule.
const (
	// OracleInfer replays the schedule against an MVCC shadow of the tables
	// and compares every statement result and the final state.
	OracleInfer = "infer"
	// OracleWriteSerializable reruns the transactions one at a time in the
	// order they finished and compares the final state only.
	OracleWriteSerializable = "write-serializable"
)

// DefaultExpectedErrors are the error texts a generated workload can
// legitimately produce on MySQL and PostgreSQL families.
var DefaultExpectedErrors = []string{
	"Duplicate entry",
	"duplicate key value",
	"Deadlock found",
	"deadlock detected",
	"could not serialize access",
	"Lock wait timeout exceeded",
	"current transaction is aborted",
}

// Options configures an Oracle and the command line tool around it.
type Options struct {
	Driver  string `yaml:"driver" toml:"driver"`
	DSN     string `yaml:"dsn" toml:"dsn"`
	Dialect string `yaml:"dialect" toml:"dialect"`

	// NumSchedules is the number of distinct schedules checked per
	// iteration.
	NumSchedules int `yaml:"num_schedules" toml:"num_schedules"`
	// FixedTransactions, when positive, fixes the number of transactions.
	FixedTransactions int `yaml:"fixed_transactions" toml:"fixed_transactions"`
	// WaitThreshold bounds every wait for a statement to complete.
	WaitThreshold time.Duration `yaml:"wait_threshold" toml:"wait_threshold"`
	// MaxStalledPolls gives up on schedules whose blocked transactions made
	// no progress after this many polls. Zero waits forever.
	MaxStalledPolls int `yaml:"max_stalled_polls" toml:"max_stalled_polls"`
	// Isolation is "random" or the level every schedule runs under.
	Isolation string `yaml:"isolation" toml:"isolation"`
	// Oracle is OracleInfer or OracleWriteSerializable.
	Oracle string `yaml:"oracle" toml:"oracle"`
	// Iterations is the number of Check calls; zero runs until interrupted.
	Iterations int   `yaml:"iterations" toml:"iterations"`
	Seed       int64 `yaml:"seed" toml:"seed"`

	ExpectedErrors  []string `yaml:"expected_errors" toml:"expected_errors"`
	CompareWarnings bool     `yaml:"compare_warnings" toml:"compare_warnings"`

	// ReportDir receives a report and a reproduction case per failure.
	ReportDir   string `yaml:"report_dir" toml:"report_dir"`
	MetricsAddr string `yaml:"metrics_addr" toml:"metrics_addr"`
	LogFormat   string `yaml:"log_format" toml:"log_format"`
	Verbosity   int    `yaml:"verbosity" toml:"verbosity"`

	Workload workload.Config `yaml:"workload" toml:"workload"`
}

// DefaultOptions returns the options used when neither a file nor a flag
// sets a value.
func DefaultOptions() Options {
	return Options{
		Driver:         "mysql",
		Dialect:        "mysql",
		NumSchedules:   10,
		WaitThreshold:  harness.DefaultWaitThreshold,
		Isolation:      IsolationRandom,
		Oracle:         OracleInfer,
		Iterations:     1,
		ExpectedErrors: append([]string(nil), DefaultExpectedErrors...),
		LogFormat:      "text",
		Workload:       workload.DefaultConfig(),
	}
}

// LoadOptions reads options from a YAML (.yaml, .yml) or TOML (.toml) file
// on top of DefaultOptions.
func LoadOptions(path string) (Options, error) {
	opts := DefaultOptions()
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, errors.Wrap(err, "reading options")
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &opts); err != nil {
			return Options{}, errors.Wrapf(err, "parsing %s", path)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), &opts); err != nil {
			return Options{}, errors.Wrapf(err, "parsing %s", path)
		}
	default:
		return Options{}, errors.Newf("unsupported options file extension %q", ext)
	}
	if err := opts.Validate(); err != nil {
		return Options{}, errors.Wrapf(err, "invalid options in %s", path)
	}
	return opts, nil
}

// Validate checks the options an Oracle depends on.
func (o Options) Validate() error {
	switch {
	case o.NumSchedules < 1:
		return errors.Newf("num_schedules must be >0, got %d", o.NumSchedules)
	case o.FixedTransactions < 0:
		return errors.Newf("fixed_transactions must be >=0, got %d", o.FixedTransactions)
	case o.WaitThreshold < 0:
		return errors.Newf("wait_threshold must be >=0, got %s", o.WaitThreshold)
	case o.MaxStalledPolls < 0:
		return errors.Newf("max_stalled_polls must be >=0, got %d", o.MaxStalledPolls)
	case o.Iterations < 0:
		return errors.Newf("iterations must be >=0, got %d", o.Iterations)
	case o.Oracle != "" && o.Oracle != OracleInfer && o.Oracle != OracleWriteSerializable:
		return errors.Newf("oracle must be %s or %s, got %q", OracleInfer, OracleWriteSerializable, o.Oracle)
	}
	if _, err := o.isolationLevels(); err != nil {
		return err
	}
	return o.Workload.Validate()
}

// isolationLevels returns the levels a schedule may run under.
func (o Options) isolationLevels() ([]txn.IsolationLevel, error) {
	if o.Isolation == "" || strings.EqualFold(o.Isolation, IsolationRandom) {
		return txn.IsolationLevels, nil
	}
	l, err := txn.ParseIsolationLevel(o.Isolation)
	if err != nil {
		return nil, err
	}
	return []txn.IsolationLevel{l}, nil
}

func (o Options) expectedErrors() txn.ErrorSet {
	return txn.MakeErrorSet(o.ExpectedErrors...)
}
