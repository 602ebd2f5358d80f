// reldb demo: bootstraps the storage engine, creates a sample table if it
// is absent, inserts three rows through the executor, and prints the names
// selected by a filtered, projected SELECT.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/relcore/reldb/internal/logger"
	"github.com/relcore/reldb/internal/metrics"
	"github.com/relcore/reldb/pkg/engine"
	"github.com/relcore/reldb/pkg/exec"
	"github.com/relcore/reldb/pkg/record"
)

var (
	dataDir   = flag.String("data-dir", "./data", "directory holding page and metadata files")
	logLevel  = flag.String("log-level", "info", "debug, info, warn, error")
	logPretty = flag.Bool("log-pretty", true, "pretty-print logs for development")
)

func main() {
	flag.Parse()

	log := logger.NewLogger(logger.Config{Level: *logLevel, Pretty: *logPretty})
	m := metrics.NewMetrics()

	log.Info("starting reldb").Str("data_dir", *dataDir).Send()

	eng, err := engine.Open(engine.Config{
		DataDir:            *dataDir,
		BufferPoolCapacity: 256,
		Persistent:         true,
		Log:                log,
		Metrics:            m,
	})
	if err != nil {
		log.Error("failed to open storage engine").Err(err).Send()
		os.Exit(1)
	}
	defer eng.Close()

	if !eng.TableExists("users") {
		if err := createUsersTable(eng); err != nil {
			log.Error("failed to create users table").Err(err).Send()
			os.Exit(1)
		}
	}

	if err := runDemo(eng, m); err != nil {
		log.Error("demo run failed").Err(err).Send()
		os.Exit(1)
	}

	log.Info("reldb demo finished").Send()
}

func createUsersTable(eng *engine.StorageEngine) error {
	columns := []record.Column{
		{Name: "id", Type: record.IntType},
		{Name: "name", Type: record.VarcharType, Length: 100},
		{Name: "age", Type: record.IntType},
	}
	_, err := eng.CreateTable("users", columns)
	return err
}

func runDemo(eng *engine.StorageEngine, m *metrics.Metrics) error {
	insertPlan, err := exec.BuildInsert(eng, exec.InsertStatement{
		Table: "users",
		ValueRows: [][]*exec.Expr{
			{exec.Lit(int32(1)), exec.Lit("Alice"), exec.Lit(int32(25))},
			{exec.Lit(int32(2)), exec.Lit("Bob"), exec.Lit(int32(30))},
			{exec.Lit(int32(3)), exec.Lit("Charlie"), exec.Lit(int32(35))},
		},
	})
	if err != nil {
		return err
	}
	if _, err := insertPlan.ExecInsert.Execute(); err != nil {
		return err
	}

	selectPlan, err := exec.BuildSelect(eng, exec.SelectStatement{
		Table:       "users",
		Where:       exec.Binary(exec.Column("age"), exec.Gt, exec.Lit(int32(25))),
		SelectItems: []*exec.Expr{exec.Column("name")},
	}, m)
	if err != nil {
		return err
	}
	for {
		has, err := selectPlan.Query.HasNext()
		if err != nil {
			return err
		}
		if !has {
			break
		}
		row, err := selectPlan.Query.Next()
		if err != nil {
			return err
		}
		fmt.Println(row[0])
	}

	return nil
}
