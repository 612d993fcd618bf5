package bootstrapper

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tracelet/spanstore/pkg/cassandra/client"
	"go.uber.org/zap"
)

type fakeSession struct {
	executed []string
	failOn   string
}

func (fs *fakeSession) Query(stmt string, _ ...interface{}) client.Query {
	return &fakeQuery{session: fs, stmt: stmt}
}

func (fs *fakeSession) Close() {}

type fakeQuery struct {
	session *fakeSession
	stmt    string
}

func (fq *fakeQuery) WithContext(_ context.Context) client.Query { return fq }

func (fq *fakeQuery) Exec() error {
	fq.session.executed = append(fq.session.executed, fq.stmt)
	if fq.session.failOn != "" && fq.stmt == fq.session.failOn {
		return errors.New("schema disagreement")
	}
	return nil
}

func (fq *fakeQuery) Iter() client.Iter { return nil }

func TestBootstrapper_BootstrapCassandra(t *testing.T) {
	t.Run("Applies every schema statement in order", func(t *testing.T) {
		session := &fakeSession{}
		bs := NewBootstrapper(session, zap.NewNop())

		err := bs.BootstrapCassandra(context.Background())
		assert.NoError(t, err)
		assert.Equal(t, schemaStatements, session.executed)
	})

	t.Run("Stops and reports the first failing statement", func(t *testing.T) {
		session := &fakeSession{failOn: schemaStatements[2]}
		bs := NewBootstrapper(session, zap.NewNop())

		err := bs.BootstrapCassandra(context.Background())
		assert.Error(t, err)
		assert.Len(t, session.executed, 3)
	})
}
