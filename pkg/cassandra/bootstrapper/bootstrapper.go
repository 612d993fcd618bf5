package bootstrapper

import (
	"context"
	"fmt"

	"github.com/tracelet/spanstore/pkg/cassandra/client"
	"go.uber.org/zap"
)

const (
	SpanTableName               = "span"
	TraceByServiceSpanTableName = "trace_by_service_span"
	SpanByServiceTableName      = "span_by_service"
)

// DDL applied at startup. Every statement is idempotent so bootstrapping can
// run on every process start; this is provisioning, not migration tooling.
var schemaStatements = []string{
	`CREATE TYPE IF NOT EXISTS endpoint (
		service text,
		ipv4    inet,
		ipv6    inet,
		port    int
	)`,
	`CREATE TYPE IF NOT EXISTS annotation (
		ts bigint,
		v  text
	)`,
	`CREATE TABLE IF NOT EXISTS ` + SpanTableName + ` (
		trace_id         text,
		ts_uuid          timeuuid,
		id               text,
		ts               bigint,
		span             text,
		parent_id        text,
		duration         bigint,
		l_ep             frozen<endpoint>,
		l_service        text,
		r_ep             frozen<endpoint>,
		annotations      list<frozen<annotation>>,
		tags             map<text, text>,
		shared           boolean,
		annotation_query text,
		PRIMARY KEY (trace_id, ts_uuid, id)
	) WITH CLUSTERING ORDER BY (ts_uuid DESC, id ASC)`,
	`CREATE TABLE IF NOT EXISTS ` + TraceByServiceSpanTableName + ` (
		service  text,
		span     text,
		bucket   int,
		ts       timeuuid,
		trace_id text,
		duration bigint,
		PRIMARY KEY ((service, span, bucket), ts)
	) WITH CLUSTERING ORDER BY (ts DESC)`,
	`CREATE TABLE IF NOT EXISTS ` + SpanByServiceTableName + ` (
		service text,
		span    text,
		PRIMARY KEY (service, span)
	)`,
	`CREATE CUSTOM INDEX IF NOT EXISTS ON ` + TraceByServiceSpanTableName + ` (duration)
		USING 'org.apache.cassandra.index.sasi.SASIIndex'
		WITH OPTIONS = {'mode': 'SPARSE'}`,
	`CREATE CUSTOM INDEX IF NOT EXISTS ON ` + SpanTableName + ` (annotation_query)
		USING 'org.apache.cassandra.index.sasi.SASIIndex'
		WITH OPTIONS = {
			'mode': 'PREFIX',
			'analyzed': 'true',
			'analyzer_class': 'org.apache.cassandra.index.sasi.analyzer.DelimiterAnalyzer',
			'delimiter': ','
		}`,
}

type Bootstrapper struct {
	session client.Session
	logger  *zap.Logger
}

func NewBootstrapper(session client.Session, logger *zap.Logger) *Bootstrapper {
	return &Bootstrapper{
		session: session,
		logger:  logger,
	}
}

// BootstrapCassandra creates the types, tables and indexes of the span store
// inside the session's keyspace.
func (bs *Bootstrapper) BootstrapCassandra(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if err := bs.session.Query(stmt).WithContext(ctx).Exec(); err != nil {
			return fmt.Errorf("error applying schema statement: %w", err)
		}
	}
	bs.logger.Info("Cassandra schema bootstrapped")
	return nil
}
