package database

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const createUser = `
INSERT INTO users (id, email, name, created_at)
VALUES ($1, $2, $3, $4)
`

type CreateUserParams struct {
	ID        uuid.UUID
	Email     string
	Name      string
	CreatedAt time.Time
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) error {
	_, err := q.db.Exec(ctx, createUser, arg.ID, arg.Email, arg.Name, arg.CreatedAt)
	return err
}

const getUserByID = `
SELECT id, email, name, created_at FROM users WHERE id = $1
`

func (q *Queries) GetUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	row := q.db.QueryRow(ctx, getUserByID, id)
	var i User
	err := row.Scan(&i.ID, &i.Email, &i.Name, &i.CreatedAt)
	return i, err
}
