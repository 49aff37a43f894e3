package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"docassist/pkg/domain"
)

const migrateLockID int64 = 48214821

// GormStore implements MetadataStore using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations under an advisory lock
// so concurrent replicas do not race the schema.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&DocumentModel{}, &AssistantModel{}, &DocumentSummaryModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		if err := tx.Exec(`
			DO $$
			BEGIN
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'assistant_models'
					AND constraint_name = 'assistant_models_document_id_fkey'
				) THEN
					ALTER TABLE assistant_models
					ADD CONSTRAINT assistant_models_document_id_fkey
					FOREIGN KEY (document_id) REFERENCES document_models(id) ON DELETE CASCADE;
				END IF;
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'document_summary_models'
					AND constraint_name = 'document_summary_models_document_id_fkey'
				) THEN
					ALTER TABLE document_summary_models
					ADD CONSTRAINT document_summary_models_document_id_fkey
					FOREIGN KEY (document_id) REFERENCES document_models(id) ON DELETE CASCADE;
				END IF;
			END $$;
		`).Error; err != nil {
			return fmt.Errorf("ensure foreign keys: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// CreateDocument inserts a new document row.
func (s *GormStore) CreateDocument(ctx context.Context, doc domain.Document) error {
	model := documentToModel(doc)
	return s.db.WithContext(ctx).Create(&model).Error
}

// GetDocument retrieves a document.
func (s *GormStore) GetDocument(ctx context.Context, id string) (domain.Document, bool, error) {
	var model DocumentModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Document{}, false, nil
		}
		return domain.Document{}, false, err
	}
	return documentFromModel(model), true, nil
}

// UpdateDocument stores the document's mutable fields.
func (s *GormStore) UpdateDocument(ctx context.Context, doc domain.Document) error {
	model := documentToModel(doc)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "description", "status", "updated_at"}),
	}).Create(&model).Error
}

// DeleteDocument removes a document row; summaries go with it by FK cascade.
func (s *GormStore) DeleteDocument(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Delete(&DocumentModel{}, "id = ?", id).Error
}

// GetAssistant retrieves the assistant for a document.
func (s *GormStore) GetAssistant(ctx context.Context, documentID string) (domain.Assistant, bool, error) {
	var model AssistantModel
	if err := s.db.WithContext(ctx).First(&model, "document_id = ?", documentID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Assistant{}, false, nil
		}
		return domain.Assistant{}, false, err
	}
	return assistantFromModel(model), true, nil
}

// UpdateAssistant persists the usage heartbeat.
func (s *GormStore) UpdateAssistant(ctx context.Context, assistant domain.Assistant) error {
	return s.db.WithContext(ctx).Model(&AssistantModel{}).
		Where("document_id = ?", assistant.DocumentID).
		Updates(map[string]any{
			"used_at":    assistant.UsedAt.UTC(),
			"updated_at": assistant.UpdatedAt.UTC(),
		}).Error
}

// CreateAssistantReady inserts the assistant row and marks the document ready
// as one transaction. The primary key on document_id makes a duplicate insert
// fail rather than create a second assistant.
func (s *GormStore) CreateAssistantReady(ctx context.Context, assistant domain.Assistant, doc domain.Document) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model := assistantToModel(assistant)
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		return tx.Model(&DocumentModel{}).
			Where("id = ?", doc.ID).
			Updates(map[string]any{
				"status":     string(doc.Status),
				"updated_at": doc.UpdatedAt.UTC(),
			}).Error
	})
}

// DeleteAssistantAndDocument removes the assistant and document rows together.
func (s *GormStore) DeleteAssistantAndDocument(ctx context.Context, documentID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&AssistantModel{}, "document_id = ?", documentID).Error; err != nil {
			return err
		}
		if err := tx.Delete(&DocumentSummaryModel{}, "document_id = ?", documentID).Error; err != nil {
			return err
		}
		return tx.Delete(&DocumentModel{}, "id = ?", documentID).Error
	})
}

// DeleteAssistantAndDowngrade removes the assistant row and writes the
// downgraded document status in one transaction.
func (s *GormStore) DeleteAssistantAndDowngrade(ctx context.Context, documentID string, doc domain.Document) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&AssistantModel{}, "document_id = ?", documentID).Error; err != nil {
			return err
		}
		return tx.Model(&DocumentModel{}).
			Where("id = ?", doc.ID).
			Updates(map[string]any{
				"status":     string(doc.Status),
				"updated_at": doc.UpdatedAt.UTC(),
			}).Error
	})
}

// FindStaleAssistants returns assistants whose heartbeat is older than the
// cutoff, joined with their documents.
func (s *GormStore) FindStaleAssistants(ctx context.Context, usedBefore time.Time) ([]StaleAssistant, error) {
	var models []AssistantModel
	if err := s.db.WithContext(ctx).
		InnerJoins("Document").
		Where("assistant_models.used_at < ?", usedBefore.UTC()).
		Order("assistant_models.used_at ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	results := make([]StaleAssistant, 0, len(models))
	for _, model := range models {
		results = append(results, StaleAssistant{
			Assistant: assistantFromModel(model),
			Document:  documentFromModel(model.Document),
		})
	}
	return results, nil
}

// ReplaceSummaries replaces the full summary set for a document in one
// transaction; readers see the old set or the new set, never a mix.
func (s *GormStore) ReplaceSummaries(ctx context.Context, documentID string, summaries []domain.DocumentSummary) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&DocumentSummaryModel{}, "document_id = ?", documentID).Error; err != nil {
			return err
		}
		if len(summaries) == 0 {
			return nil
		}
		models := make([]DocumentSummaryModel, 0, len(summaries))
		for _, summary := range summaries {
			model := summaryToModel(summary)
			model.DocumentID = documentID
			models = append(models, model)
		}
		return tx.CreateInBatches(&models, 200).Error
	})
}

// ListSummaries returns summaries for a document in chunk order.
func (s *GormStore) ListSummaries(ctx context.Context, documentID string) ([]domain.DocumentSummary, error) {
	var models []DocumentSummaryModel
	if err := s.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("idx ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	summaries := make([]domain.DocumentSummary, 0, len(models))
	for _, model := range models {
		summaries = append(summaries, summaryFromModel(model))
	}
	return summaries, nil
}

func documentToModel(d domain.Document) DocumentModel {
	return DocumentModel{
		ID:          d.ID,
		OwnerID:     d.OwnerID,
		Name:        d.Name,
		Description: d.Description,
		FileRef:     d.FileRef,
		Status:      string(d.Status),
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

func documentFromModel(m DocumentModel) domain.Document {
	return domain.Document{
		ID:          m.ID,
		OwnerID:     m.OwnerID,
		Name:        m.Name,
		Description: m.Description,
		FileRef:     m.FileRef,
		Status:      domain.DocumentStatus(m.Status),
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func assistantToModel(a domain.Assistant) AssistantModel {
	return AssistantModel{
		DocumentID:  a.DocumentID,
		AssistantID: a.AssistantID,
		ThreadID:    a.ThreadID,
		UsedAt:      a.UsedAt,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

func assistantFromModel(m AssistantModel) domain.Assistant {
	return domain.Assistant{
		DocumentID:  m.DocumentID,
		AssistantID: m.AssistantID,
		ThreadID:    m.ThreadID,
		UsedAt:      m.UsedAt,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func summaryToModel(s domain.DocumentSummary) DocumentSummaryModel {
	return DocumentSummaryModel{
		ID:         s.ID,
		DocumentID: s.DocumentID,
		Text:       s.Text,
		Idx:        s.Index,
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
	}
}

func summaryFromModel(m DocumentSummaryModel) domain.DocumentSummary {
	return domain.DocumentSummary{
		ID:         m.ID,
		DocumentID: m.DocumentID,
		Text:       m.Text,
		Index:      m.Idx,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}
