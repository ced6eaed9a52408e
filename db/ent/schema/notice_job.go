// Package schema holds the ent schema of the job store. The repository's DDL
// and column list are checked against it in tests.
package schema

import (
	"encoding/json"
	"errors"
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"

	"github.com/joseph-ayodele/notice-ingest/constants"
)

// Table is the SQL table name of NoticeJob.
const Table = "notice_jobs"

type NoticeJob struct{ ent.Schema }

func (NoticeJob) Annotations() []schema.Annotation {
	return []schema.Annotation{
		entsql.Annotation{
			Table: Table,
			Checks: map[string]string{
				"notice_jobs_ocr_pair": "(ocr_text IS NULL) = (ocr_confidence IS NULL)",
			},
		},
	}
}

func (NoticeJob) Fields() []ent.Field {
	return []ent.Field{
		// caller-owned id
		field.String("id").NotEmpty().Immutable(),
		field.String("source_url").Optional().Nillable(),
		field.String("mime_type").NotEmpty(),
		field.String("status").
			Default(string(constants.JobStatusPending)).
			Validate(validStatus),
		field.String("ocr_text").Optional().Nillable().
			SchemaType(map[string]string{dialect.Postgres: "text"}),
		field.Float("ocr_confidence").Optional().Nillable().Min(0).Max(1),
		field.Int("page_count").Optional().Nillable(),
		field.JSON("extracted_fields", json.RawMessage{}).
			Optional().
			SchemaType(map[string]string{dialect.Postgres: "jsonb"}),
		field.String("model_name").Optional().Nillable(),
		field.String("failure_reason").Optional().Nillable(),
		field.Time("started_at").Optional().Nillable(),
		field.Time("finished_at").Optional().Nillable(),
		field.Time("created_at").Default(time.Now).Immutable(),
		field.Time("updated_at").Default(time.Now).UpdateDefault(time.Now),
	}
}

func (NoticeJob) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("status", "created_at"),
	}
}

func validStatus(s string) error {
	if !constants.JobStatus(s).Valid() {
		return errors.New("invalid job status " + s)
	}
	return nil
}
