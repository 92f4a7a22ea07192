package spclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/Zerg00s/SharePoint-Online-Manager-sub002/logging"
)

// Action and object path identifier bases for multiplexed ProcessQuery
// requests. Query ids start high so they never collide with the handful of
// ids the static object path chain uses, and responses are demultiplexed by
// subtracting the base.
const (
	queryActionIDBase = 2000
	objectPathIDBase  = 100
)

// Object path ids for the fixed chain Current -> Web -> Lists -> GetById.
const (
	pathIDCurrent = 0
	pathIDWeb     = 1
	pathIDLists   = 2
	pathIDList    = 3
)

// clientContextTypeID identifies the static ClientContext.Current property in
// the CSOM type system.
const clientContextTypeID = "{3747adcd-a3c3-41b9-bfab-4a64dd2f1e0a}"

// BatchPropertyChecker probes the unique-permission flag for many list items
// per round trip by multiplexing scalar property queries into a single
// ProcessQuery request.
type BatchPropertyChecker struct {
	exec      *ThrottleExecutor
	siteURL   string
	batchSize int
	logger    *logging.Logger
}

// NewBatchPropertyChecker creates a checker for one site. batchSize bounds
// how many items share a request.
func NewBatchPropertyChecker(exec *ThrottleExecutor, siteURL string, batchSize int, logger *logging.Logger) *BatchPropertyChecker {
	if batchSize < 1 {
		batchSize = 1
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &BatchPropertyChecker{
		exec:      exec,
		siteURL:   strings.TrimRight(siteURL, "/"),
		batchSize: batchSize,
		logger:    logger.WithComponent("batch_checker"),
	}
}

// CheckUniquePermissions returns the subset of itemIDs whose items carry
// unique role assignments. A failed batch is logged and skipped so one bad
// probe does not poison the others; only cancellation aborts the whole check.
func (c *BatchPropertyChecker) CheckUniquePermissions(ctx context.Context, listID string, itemIDs []int) (map[int]struct{}, error) {
	unique := make(map[int]struct{})

	for start := 0; start < len(itemIDs); start += c.batchSize {
		if err := ctx.Err(); err != nil {
			return unique, err
		}
		end := start + c.batchSize
		if end > len(itemIDs) {
			end = len(itemIDs)
		}
		batch := itemIDs[start:end]

		if err := c.checkBatch(ctx, listID, batch, unique); err != nil {
			if ctx.Err() != nil {
				return unique, ctx.Err()
			}
			c.logger.Warn("Flag probe batch failed, skipping",
				"list_id", listID,
				"batch_start", start,
				"batch_size", len(batch),
				"error", err.Error())
		}
	}

	return unique, nil
}

func (c *BatchPropertyChecker) checkBatch(ctx context.Context, listID string, batch []int, unique map[int]struct{}) error {
	body := buildUniqueFlagRequest(listID, batch)
	endpoint := c.siteURL + "/_api/ProcessQuery"

	resp, err := c.exec.Do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", `text/xml;charset="UTF-8"`)
		return req, nil
	})
	if err != nil {
		return err
	}

	data, err := readBody(resp)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return &StatusError{StatusCode: resp.StatusCode, Endpoint: endpoint}
	}

	results, err := parseMultiplexedResponse(data, len(batch))
	if err != nil {
		return err
	}

	for offset, raw := range results {
		var payload struct {
			HasUniqueRoleAssignments bool `json:"HasUniqueRoleAssignments"`
		}
		if err := json.Unmarshal(raw, &payload); err != nil {
			c.logger.Warn("Unreadable flag result, skipping item",
				"list_id", listID, "item_id", batch[offset])
			continue
		}
		if payload.HasUniqueRoleAssignments {
			unique[batch[offset]] = struct{}{}
		}
	}
	return nil
}

// buildUniqueFlagRequest assembles the ProcessQuery XML for one batch. Each
// item gets its own object path (GetItemById) and a query action requesting
// the HasUniqueRoleAssignments scalar, all sharing the Current -> Web ->
// Lists -> GetById chain.
func buildUniqueFlagRequest(listID string, itemIDs []int) []byte {
	var b bytes.Buffer
	b.WriteString(`<Request xmlns="http://schemas.microsoft.com/sharepoint/clientquery/2009" SchemaVersion="15.0.0.0" LibraryVersion="16.0.0.0" ApplicationName="spomgr">`)

	b.WriteString(`<Actions>`)
	for i := range itemIDs {
		fmt.Fprintf(&b,
			`<Query Id="%d" ObjectPathId="%d"><Query SelectAllProperties="false"><Properties><Property Name="HasUniqueRoleAssignments" ScalarProperty="true" /></Properties></Query></Query>`,
			queryActionIDBase+i, objectPathIDBase+i)
	}
	b.WriteString(`</Actions>`)

	b.WriteString(`<ObjectPaths>`)
	fmt.Fprintf(&b, `<StaticProperty Id="%d" TypeId="%s" Name="Current" />`, pathIDCurrent, clientContextTypeID)
	fmt.Fprintf(&b, `<Property Id="%d" ParentId="%d" Name="Web" />`, pathIDWeb, pathIDCurrent)
	fmt.Fprintf(&b, `<Property Id="%d" ParentId="%d" Name="Lists" />`, pathIDLists, pathIDWeb)
	fmt.Fprintf(&b,
		`<Method Id="%d" ParentId="%d" Name="GetById"><Parameters><Parameter Type="String">%s</Parameter></Parameters></Method>`,
		pathIDList, pathIDLists, listID)
	for i, itemID := range itemIDs {
		fmt.Fprintf(&b,
			`<Method Id="%d" ParentId="%d" Name="GetItemById"><Parameters><Parameter Type="Number">%d</Parameter></Parameters></Method>`,
			objectPathIDBase+i, pathIDList, itemID)
	}
	b.WriteString(`</ObjectPaths>`)

	b.WriteString(`</Request>`)
	return b.Bytes()
}

// parseMultiplexedResponse decodes the flat ProcessQuery response: an
// envelope object first, then alternating action-id and result elements. Ids
// outside this batch's action range belong to the CSOM framework and are
// ignored. The returned map is keyed by offset within the batch.
func parseMultiplexedResponse(data []byte, batchLen int) (map[int]json.RawMessage, error) {
	var stream []json.RawMessage
	if err := json.Unmarshal(data, &stream); err != nil {
		return nil, fmt.Errorf("decoding multiplexed response: %w", err)
	}
	if len(stream) == 0 {
		return nil, fmt.Errorf("empty multiplexed response")
	}

	var envelope struct {
		ErrorInfo *struct {
			ErrorMessage  string `json:"ErrorMessage"`
			ErrorCode     int    `json:"ErrorCode"`
			ErrorTypeName string `json:"ErrorTypeName"`
		} `json:"ErrorInfo"`
	}
	if err := json.Unmarshal(stream[0], &envelope); err != nil {
		return nil, fmt.Errorf("decoding response envelope: %w", err)
	}
	if envelope.ErrorInfo != nil {
		return nil, fmt.Errorf("server rejected batch: %s (code %d)",
			envelope.ErrorInfo.ErrorMessage, envelope.ErrorInfo.ErrorCode)
	}

	results := make(map[int]json.RawMessage, batchLen)
	for i := 1; i+1 < len(stream); i += 2 {
		var id int
		if err := json.Unmarshal(stream[i], &id); err != nil {
			continue
		}
		if id < queryActionIDBase || id >= queryActionIDBase+batchLen {
			continue
		}
		results[id-queryActionIDBase] = stream[i+1]
	}
	return results, nil
}
