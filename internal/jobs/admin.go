package jobs

import (
	"context"
	"errors"
	"flag"
	"strings"

	"grocerysync/internal/backend"
	"grocerysync/internal/reconcile"
	"grocerysync/migrations"
)

var errNeedsPostgres = errors.New("job needs the postgres backend")

// Migrate creates or upgrades the object store schema.
type Migrate struct{}

func (j *Migrate) Name() string { return "migrate" }

func (j *Migrate) Description() string { return "create or upgrade the postgres object store schema" }

func (j *Migrate) Bind(*flag.FlagSet) {}

func (j *Migrate) Run(_ context.Context, env *Env) (reconcile.Summary, error) {
	if env.DB == nil {
		return reconcile.Summary{}, errNeedsPostgres
	}
	if err := migrations.UpObjectStore(env.DB.DB, env.Config.Backend.Postgres.Schema, env.Log); err != nil {
		return reconcile.Summary{}, err
	}
	return reconcile.NewSummary(), nil
}

// CreateUser registers a backend user; the crawler account is usually the first.
type CreateUser struct {
	Username string
	Password string
}

func (j *CreateUser) Name() string { return "create-user" }

func (j *CreateUser) Description() string { return "register a user with the backend" }

func (j *CreateUser) Bind(fs *flag.FlagSet) {
	fs.StringVar(&j.Username, "username", "", "user name")
	fs.StringVar(&j.Password, "password", "", "password")
}

func (j *CreateUser) Run(ctx context.Context, env *Env) (reconcile.Summary, error) {
	if strings.TrimSpace(j.Username) == "" || j.Password == "" {
		return reconcile.Summary{}, usageError("--username and --password must be provided")
	}
	registrar, ok := env.Driver.(backend.Registrar)
	if !ok {
		return reconcile.Summary{}, errors.New("backend does not manage its own users")
	}
	id, err := registrar.SignUp(ctx, strings.TrimSpace(j.Username), j.Password)
	if err != nil {
		return reconcile.Summary{}, err
	}
	env.Log.Info("user created", "username", j.Username, "userId", id)

	summary := reconcile.NewSummary()
	summary.Add(reconcile.Done(id, reconcile.Created, reconcile.Ops{Created: 1}))
	return summary, nil
}
