package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pacpltradingdesk-dotcom/indicator-crm/pkg/models"
)

// CustomerRepository handles customer, message, tag and activity operations.
type CustomerRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewCustomerRepository creates a new customer repository.
func NewCustomerRepository(db *sql.DB, logger *slog.Logger) *CustomerRepository {
	return &CustomerRepository{db: db, logger: logger}
}

const customerColumns = `
	id
  , phone
  , name
  , email
  , source
  , lead_stage
  , lead_temperature
  , lead_score
  , ai_summary
  , total_messages
  , total_spent
  , last_message_at
  , created_at
  , updated_at
`

func (r *CustomerRepository) GetByID(ctx context.Context, id string) (*models.Customer, error) {
	query := `SELECT` + customerColumns + `FROM customers WHERE id = $1`

	row := r.db.QueryRowContext(ctx, query, id)

	customer, err := r.scanCustomer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan customer: %w", err)
	}

	return customer, nil
}

// Save upserts the customer by ID.
func (r *CustomerRepository) Save(ctx context.Context, customer *models.Customer) error {
	now := time.Now().UTC()

	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = now
	}

	customer.UpdatedAt = now

	if customer.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate customer ID: %w", err)
		}

		customer.ID = id.String()
	}

	query := `
		INSERT INTO customers (id, phone, name, email, source, lead_stage, lead_temperature, lead_score, ai_summary, total_messages, total_spent, last_message_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			phone = EXCLUDED.phone
		  , name = EXCLUDED.name
		  , email = EXCLUDED.email
		  , source = EXCLUDED.source
		  , lead_stage = EXCLUDED.lead_stage
		  , lead_temperature = EXCLUDED.lead_temperature
		  , lead_score = EXCLUDED.lead_score
		  , ai_summary = EXCLUDED.ai_summary
		  , total_messages = EXCLUDED.total_messages
		  , total_spent = EXCLUDED.total_spent
		  , last_message_at = EXCLUDED.last_message_at
		  , updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		customer.ID,
		customer.Phone,
		customer.Name,
		customer.Email,
		customer.Source,
		customer.LeadStage,
		customer.LeadTemperature,
		customer.LeadScore,
		customer.AISummary,
		customer.TotalMessages,
		customer.TotalSpent,
		customer.LastMessageAt,
		customer.CreatedAt,
		customer.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save customer: %w", err)
	}

	return nil
}

func (r *CustomerRepository) UpdateStage(ctx context.Context, customerID string, stage models.LeadStage) error {
	query := `UPDATE customers SET lead_stage = $2, updated_at = NOW() WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, customerID, stage)
	if err != nil {
		return fmt.Errorf("failed to update customer stage: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("customer %s not found", customerID)
	}

	return nil
}

func (r *CustomerRepository) List(ctx context.Context) ([]*models.Customer, error) {
	query := `SELECT` + customerColumns + `FROM customers ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query customers: %w", err)
	}

	defer func(ctx context.Context, r *CustomerRepository) {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}(ctx, r)

	customers := make([]*models.Customer, 0)

	for rows.Next() {
		customer, err := r.scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}

		customers = append(customers, customer)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating customers: %w", err)
	}

	return customers, nil
}

func (r *CustomerRepository) CreateMessage(ctx context.Context, message *models.Message) error {
	if message.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate message ID: %w", err)
		}

		message.ID = id.String()
	}

	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO messages (id, customer_id, direction, message_type, content, template_name, whatsapp_msg_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		message.ID,
		message.CustomerID,
		message.Direction,
		message.Type,
		message.Content,
		message.TemplateName,
		message.WhatsAppMsgID,
		message.Status,
		message.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}

	return nil
}

// RecentMessages returns the customer's latest messages, newest first.
func (r *CustomerRepository) RecentMessages(ctx context.Context, customerID string, limit int) ([]*models.Message, error) {
	query := `
		SELECT
			id
		  , customer_id
		  , direction
		  , message_type
		  , content
		  , template_name
		  , whatsapp_msg_id
		  , status
		  , created_at
		FROM messages
		WHERE customer_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, customerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}

	defer func(ctx context.Context, r *CustomerRepository) {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}(ctx, r)

	messages := make([]*models.Message, 0)

	for rows.Next() {
		var message models.Message

		err := rows.Scan(
			&message.ID,
			&message.CustomerID,
			&message.Direction,
			&message.Type,
			&message.Content,
			&message.TemplateName,
			&message.WhatsAppMsgID,
			&message.Status,
			&message.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}

		messages = append(messages, &message)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	return messages, nil
}

// UpsertTagByName returns the tag with the given name, creating it when
// missing. An existing tag keeps its is_ai_generated flag.
func (r *CustomerRepository) UpsertTagByName(ctx context.Context, name string, aiGenerated bool) (*models.Tag, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate tag ID: %w", err)
	}

	query := `
		INSERT INTO tags (id, name, is_ai_generated, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, name, is_ai_generated, created_at
	`

	var tag models.Tag

	err = r.db.QueryRowContext(ctx, query, id.String(), name, aiGenerated).Scan(
		&tag.ID,
		&tag.Name,
		&tag.IsAIGenerated,
		&tag.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert tag: %w", err)
	}

	return &tag, nil
}

// TagCustomer links the tag to the customer; already-linked pairs are a no-op.
func (r *CustomerRepository) TagCustomer(ctx context.Context, customerID, tagID string) error {
	query := `
		INSERT INTO customer_tags (customer_id, tag_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, query, customerID, tagID)
	if err != nil {
		return fmt.Errorf("failed to tag customer: %w", err)
	}

	return nil
}

func (r *CustomerRepository) CustomerTags(ctx context.Context, customerID string) ([]*models.Tag, error) {
	query := `
		SELECT
			t.id
		  , t.name
		  , t.is_ai_generated
		  , t.created_at
		FROM tags t
		JOIN customer_tags ct ON ct.tag_id = t.id
		WHERE ct.customer_id = $1
		ORDER BY t.name
	`

	rows, err := r.db.QueryContext(ctx, query, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query customer tags: %w", err)
	}

	defer func(ctx context.Context, r *CustomerRepository) {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}(ctx, r)

	tags := make([]*models.Tag, 0)

	for rows.Next() {
		var tag models.Tag

		err := rows.Scan(&tag.ID, &tag.Name, &tag.IsAIGenerated, &tag.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}

		tags = append(tags, &tag)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating tags: %w", err)
	}

	return tags, nil
}

func (r *CustomerRepository) CreateFollowUp(ctx context.Context, followUp *models.ScheduledFollowUp) error {
	if followUp.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate follow-up ID: %w", err)
		}

		followUp.ID = id.String()
	}

	if followUp.CreatedAt.IsZero() {
		followUp.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO scheduled_follow_ups (id, customer_id, follow_up_type, content, scheduled_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(ctx, query,
		followUp.ID,
		followUp.CustomerID,
		followUp.Type,
		followUp.Content,
		followUp.ScheduledAt,
		followUp.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create follow-up: %w", err)
	}

	return nil
}

func (r *CustomerRepository) CreateActivity(ctx context.Context, activity *models.Activity) error {
	if activity.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate activity ID: %w", err)
		}

		activity.ID = id.String()
	}

	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO activities (id, customer_id, activity_type, description, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.ExecContext(ctx, query,
		activity.ID,
		activity.CustomerID,
		activity.Type,
		activity.Description,
		activity.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create activity: %w", err)
	}

	return nil
}

func (r *CustomerRepository) scanCustomer(row interface{ Scan(...any) error }) (*models.Customer, error) {
	var customer models.Customer

	err := row.Scan(
		&customer.ID,
		&customer.Phone,
		&customer.Name,
		&customer.Email,
		&customer.Source,
		&customer.LeadStage,
		&customer.LeadTemperature,
		&customer.LeadScore,
		&customer.AISummary,
		&customer.TotalMessages,
		&customer.TotalSpent,
		&customer.LastMessageAt,
		&customer.CreatedAt,
		&customer.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &customer, nil
}
