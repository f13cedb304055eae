package postgres

import (
	"github.com/jmoiron/sqlx"

	"github.com/attendly/queue-api/internal/repository"
)

type appointmentRepository struct {
	db *sqlx.DB
}

type queueRepository struct {
	db *sqlx.DB
}

type outboxRepository struct {
	db *sqlx.DB
}

func NewAppointmentRepository(db *sqlx.DB) repository.AppointmentRepository {
	return &appointmentRepository{db: db}
}

func NewQueueRepository(db *sqlx.DB) repository.QueueRepository {
	return &queueRepository{db: db}
}

func NewOutboxRepository(db *sqlx.DB) repository.OutboxRepository {
	return &outboxRepository{db: db}
}
