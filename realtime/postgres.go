package realtime

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// PGChannel is the NOTIFY channel the visitors trigger writes to.
const PGChannel = "visitors_changes"

// PGTriggerSQL installs the notify trigger on the visitors table.
const PGTriggerSQL = `
CREATE OR REPLACE FUNCTION notify_visitors_change() RETURNS trigger AS $$
DECLARE rid bigint;
BEGIN
  IF TG_OP = 'DELETE' THEN rid := OLD.id; ELSE rid := NEW.id; END IF;
  PERFORM pg_notify('` + PGChannel + `',
    json_build_object('type', TG_OP, 'table', TG_TABLE_NAME, 'ids', json_build_array(rid))::text);
  RETURN NULL;
END;
$$ LANGUAGE plpgsql;
DROP TRIGGER IF EXISTS visitors_notify ON visitors;
CREATE TRIGGER visitors_notify AFTER INSERT OR UPDATE OR DELETE ON visitors
  FOR EACH ROW EXECUTE FUNCTION notify_visitors_change();
`

// PGListener turns Postgres notifications into local Hub events. The
// database trigger is the publisher, so Publish is a no-op.
type PGListener struct {
	dsn            string
	local          *Hub
	logger         *zap.Logger
	ReconnectDelay time.Duration
}

func NewPGListener(dsn string, local *Hub, logger *zap.Logger) *PGListener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PGListener{dsn: dsn, local: local, logger: logger, ReconnectDelay: 3 * time.Second}
}

func (l *PGListener) Subscribe(table string) (*Subscription, error) {
	return l.local.Subscribe(table)
}

func (l *PGListener) Unsubscribe(sub *Subscription) { l.local.Unsubscribe(sub) }

func (l *PGListener) Publish(context.Context, ChangeEvent) error { return nil }

// Run listens until ctx is cancelled, reconnecting after failures.
func (l *PGListener) Run(ctx context.Context) error {
	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return nil
		}
		l.logger.Warn("postgres change feed lost, reconnecting", zap.Error(err))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(l.ReconnectDelay):
		}
	}
}

func (l *PGListener) listen(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, l.dsn)
	if err != nil {
		return fmt.Errorf("pg connect: %w", err)
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{PGChannel}.Sanitize()); err != nil {
		return fmt.Errorf("pg listen: %w", err)
	}
	l.logger.Info("postgres change feed listening", zap.String("channel", PGChannel))
	_ = l.local.Publish(ctx, ChangeEvent{Type: EventResync, Table: TableVisitors})

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		ev, err := DecodeEvent([]byte(n.Payload))
		if err != nil {
			l.logger.Warn("bad change event from postgres", zap.Error(err))
			continue
		}
		_ = l.local.Publish(ctx, ev)
	}
}
