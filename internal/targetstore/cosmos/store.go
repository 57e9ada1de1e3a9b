// Package cosmos implements the document-store Target Store backend (§4.6
// Backend D): one Azure Cosmos DB container per template, partitioned by
// subject_id, with per-document upsert retry on throttling.
package cosmos

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/azcosmos"

	"github.com/atlas-health/atlas/internal/atlaserrors"
	"github.com/atlas-health/atlas/internal/ids"
	"github.com/atlas-health/atlas/internal/obsmetrics"
	"github.com/atlas-health/atlas/internal/targetstore"
	"github.com/atlas-health/atlas/internal/transform"
)

const (
	subjectPartitionPath = "/subject_id"
	controlPartitionPath = "/id"
	maxThrottleDelay     = 30 * time.Second
	initialThrottleDelay = 1 * time.Second
)

// Store is the Cosmos DB-backed document Target Store.
type Store struct {
	database        *azcosmos.DatabaseClient
	containerPrefix string
	controlName     string
	maxRetries      int
}

// NewStore connects to Cosmos DB with key auth and resolves the database.
func NewStore(endpoint, key, databaseName, containerPrefix, controlName string, maxRetries int) (*Store, error) {
	cred, err := azcosmos.NewKeyCredential(key)
	if err != nil {
		return nil, atlaserrors.Wrap(atlaserrors.Configuration, err, "building cosmos key credential")
	}

	client, err := azcosmos.NewClientWithKey(endpoint, cred, nil)
	if err != nil {
		return nil, atlaserrors.Wrap(atlaserrors.TargetConnection, err, "creating cosmos client")
	}

	db, err := client.NewDatabase(databaseName)
	if err != nil {
		return nil, atlaserrors.Wrap(atlaserrors.TargetConnection, err, "resolving cosmos database %s", databaseName)
	}

	return &Store{database: db, containerPrefix: containerPrefix, controlName: controlName, maxRetries: maxRetries}, nil
}

func (s *Store) Close(_ context.Context) error { return nil }

func (s *Store) containerName(templateID ids.TemplateId) string {
	return templateID.ToContainerName(s.containerPrefix)
}

// EnsureContainer creates the per-template container, partitioned by
// subject_id, if it does not already exist (§4.6).
func (s *Store) EnsureContainer(ctx context.Context, templateID ids.TemplateId) error {
	return s.ensureContainer(ctx, s.containerName(templateID), subjectPartitionPath)
}

// EnsureControlContainer creates the shared control container used for
// watermark state, partitioned by id.
func (s *Store) EnsureControlContainer(ctx context.Context) error {
	return s.ensureContainer(ctx, s.controlName, controlPartitionPath)
}

func (s *Store) ensureContainer(ctx context.Context, name, partitionPath string) error {
	container, err := s.database.NewContainer(name)
	if err == nil {
		if _, readErr := container.Read(ctx, nil); readErr == nil {
			return nil
		}
	}

	props := azcosmos.ContainerProperties{
		ID: name,
		PartitionKeyDefinition: azcosmos.PartitionKeyDefinition{
			Paths: []string{partitionPath},
		},
	}
	if _, err := s.database.CreateContainer(ctx, props, nil); err != nil && !isConflict(err) {
		return atlaserrors.Wrap(atlaserrors.TargetConnection, err, "creating cosmos container %s", name)
	}
	return nil
}

func isConflict(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == 409
}

func isThrottled(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == 429
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == 404
}

// BulkUpsert upserts each record keyed by its subject id partition,
// retrying 429 responses with capped exponential backoff.
func (s *Store) BulkUpsert(ctx context.Context, templateID ids.TemplateId, records []transform.Record, dryRun bool) (targetstore.BulkResult, error) {
	if dryRun {
		return targetstore.BulkResult{Successful: len(records)}, nil
	}

	container, err := s.database.NewContainer(s.containerName(templateID))
	if err != nil {
		return targetstore.BulkResult{}, atlaserrors.Wrap(atlaserrors.TargetConnection, err, "resolving container for %s", templateID.String())
	}

	var result targetstore.BulkResult
	for _, rec := range records {
		doc, buildErr := toDocument(rec)
		if buildErr != nil {
			result.Failed++
			result.Errors = append(result.Errors, buildErr)
			continue
		}

		pk := azcosmos.NewPartitionKeyString(rec.SubjectID)
		if err := s.upsertWithRetry(ctx, container, pk, doc); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, atlaserrors.Wrap(atlaserrors.TargetInsertFailed, err, "upserting composition %s", rec.ID))
			continue
		}
		result.Successful++
		obsmetrics.CompositionsExportedTotal.WithLabelValues(templateID.String()).Inc()
	}

	if result.Failed > 0 {
		obsmetrics.CompositionsFailedTotal.WithLabelValues(templateID.String()).Add(float64(result.Failed))
	}
	return result, nil
}

func (s *Store) upsertWithRetry(ctx context.Context, container *azcosmos.ContainerClient, pk azcosmos.PartitionKey, doc []byte) error {
	delay := initialThrottleDelay
	for attempt := 0; ; attempt++ {
		_, err := container.UpsertItem(ctx, pk, doc, nil)
		if err == nil {
			return nil
		}
		if !isThrottled(err) || attempt >= s.maxRetries {
			return err
		}

		obsmetrics.TargetThrottledTotal.WithLabelValues("cosmos").Inc()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay = time.Duration(math.Min(float64(delay*2), float64(maxThrottleDelay)))
	}
}

// VerifyExists performs a point read keyed by the subject partition, since
// documents are partitioned by subject_id rather than composition id.
func (s *Store) VerifyExists(ctx context.Context, templateID ids.TemplateId, subjectID ids.SubjectId, compositionUID string) (bool, string, error) {
	container, err := s.database.NewContainer(s.containerName(templateID))
	if err != nil {
		return false, "", atlaserrors.Wrap(atlaserrors.TargetConnection, err, "resolving container for %s", templateID.String())
	}

	pk := azcosmos.NewPartitionKeyString(subjectID.String())
	resp, err := container.ReadItem(ctx, pk, compositionUID, nil)
	if err != nil {
		if isNotFound(err) {
			return false, "", nil
		}
		return false, "", atlaserrors.Wrap(atlaserrors.TargetQueryFailed, err, "verifying composition %s", compositionUID)
	}

	var row struct {
		Checksum string `json:"checksum"`
	}
	if jsonErr := json.Unmarshal(resp.Value, &row); jsonErr != nil {
		return true, "", nil
	}
	return true, row.Checksum, nil
}

// toDocument stamps the Target Store's required identity fields onto the
// already-shaped transformed document so it can be upserted and later read
// back by id.
func toDocument(rec transform.Record) ([]byte, error) {
	var merged map[string]any
	if err := json.Unmarshal(rec.Data, &merged); err != nil {
		return nil, atlaserrors.Wrap(atlaserrors.Transformation, err, "decoding transformed document for cosmos upsert")
	}
	merged["id"] = rec.ID
	merged["subject_id"] = rec.SubjectID
	merged["composition_uid"] = rec.CompositionUID

	out, err := json.Marshal(merged)
	if err != nil {
		return nil, atlaserrors.Wrap(atlaserrors.Transformation, err, "marshalling cosmos document")
	}
	return out, nil
}
