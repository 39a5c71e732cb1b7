package dnssync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/guonaihong/gout"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"github.com/talkincode/toughdns/config"
	"github.com/talkincode/toughdns/internal/engine"
)

const dnspodEndpoint = "https://dnsapi.cn"

// DNSPodProvider implements Provider against the DNSPod record API.
type DNSPodProvider struct {
	cfg config.DNSConfig

	mu        sync.Mutex
	recordIds map[engine.Line]map[string]string // line -> ip -> record id
}

func NewDNSPodProvider(cfg config.DNSConfig) *DNSPodProvider {
	return &DNSPodProvider{
		cfg:       cfg,
		recordIds: make(map[engine.Line]map[string]string),
	}
}

type dnspodStatus struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type dnspodRecord struct {
	Id    string `json:"id"`
	Value string `json:"value"`
	Line  string `json:"line"`
	TTL   string `json:"ttl"`
	Type  string `json:"type"`
}

type dnspodListResponse struct {
	Status  dnspodStatus   `json:"status"`
	Records []dnspodRecord `json:"records"`
}

type dnspodWriteResponse struct {
	Status dnspodStatus `json:"status"`
	Record struct {
		Id interface{} `json:"id"`
	} `json:"record"`
}

func (p *DNSPodProvider) loginToken() string {
	return fmt.Sprintf("%s,%s", p.cfg.DNSPod.SecretId, p.cfg.DNSPod.SecretKey)
}

func (p *DNSPodProvider) baseForm() gout.H {
	return gout.H{
		"login_token": p.loginToken(),
		"format":      "json",
		"domain":      p.cfg.Domain,
	}
}

// ListRecords fetches the A records of the configured sub domain on one
// carrier line and refreshes the record-id cache used by DeleteRecord.
func (p *DNSPodProvider) ListRecords(ctx context.Context, line engine.Line) ([]PublishedRecord, error) {
	form := p.baseForm()
	form["sub_domain"] = p.cfg.SubDomain
	form["record_type"] = "A"
	form["record_line"] = RecordLines[line]

	var resp dnspodListResponse
	err := gout.POST(dnspodEndpoint + "/Record.List").
		WithContext(ctx).
		SetTimeout(10 * time.Second).
		SetForm(form).
		BindJSON(&resp).
		Do()
	if err != nil {
		return nil, errors.Wrapf(err, "dnspod list records for %s", line)
	}
	// Code "10" means the sub domain holds no records yet.
	if resp.Status.Code != "1" && resp.Status.Code != "10" {
		return nil, errors.Errorf("dnspod list records for %s: %s (%s)",
			line, resp.Status.Message, resp.Status.Code)
	}

	ids := make(map[string]string, len(resp.Records))
	records := make([]PublishedRecord, 0, len(resp.Records))
	for _, rec := range resp.Records {
		if rec.Type != "A" {
			continue
		}
		ids[rec.Value] = rec.Id
		records = append(records, PublishedRecord{
			IP:   rec.Value,
			Line: line,
			TTL:  cast.ToInt(rec.TTL),
		})
	}

	p.mu.Lock()
	p.recordIds[line] = ids
	p.mu.Unlock()

	return records, nil
}

func (p *DNSPodProvider) CreateRecord(ctx context.Context, line engine.Line, ip string, ttl int) error {
	form := p.baseForm()
	form["sub_domain"] = p.cfg.SubDomain
	form["record_type"] = "A"
	form["record_line"] = RecordLines[line]
	form["value"] = ip
	form["ttl"] = cast.ToString(ttl)

	var resp dnspodWriteResponse
	err := gout.POST(dnspodEndpoint + "/Record.Create").
		WithContext(ctx).
		SetTimeout(10 * time.Second).
		SetForm(form).
		BindJSON(&resp).
		Do()
	if err != nil {
		return errors.Wrapf(err, "dnspod create %s on %s", ip, line)
	}
	if resp.Status.Code != "1" {
		return errors.Errorf("dnspod create %s on %s: %s (%s)",
			ip, line, resp.Status.Message, resp.Status.Code)
	}

	p.mu.Lock()
	if p.recordIds[line] == nil {
		p.recordIds[line] = make(map[string]string)
	}
	p.recordIds[line][ip] = cast.ToString(resp.Record.Id)
	p.mu.Unlock()
	return nil
}

func (p *DNSPodProvider) DeleteRecord(ctx context.Context, line engine.Line, ip string) error {
	id, err := p.recordId(ctx, line, ip)
	if err != nil {
		return err
	}

	form := p.baseForm()
	form["record_id"] = id

	var resp dnspodWriteResponse
	err = gout.POST(dnspodEndpoint + "/Record.Remove").
		WithContext(ctx).
		SetTimeout(10 * time.Second).
		SetForm(form).
		BindJSON(&resp).
		Do()
	if err != nil {
		return errors.Wrapf(err, "dnspod delete %s on %s", ip, line)
	}
	if resp.Status.Code != "1" {
		return errors.Errorf("dnspod delete %s on %s: %s (%s)",
			ip, line, resp.Status.Message, resp.Status.Code)
	}

	p.mu.Lock()
	delete(p.recordIds[line], ip)
	p.mu.Unlock()
	return nil
}

// recordId resolves the provider-side record id for an ip, re-listing the
// line when the cache is cold.
func (p *DNSPodProvider) recordId(ctx context.Context, line engine.Line, ip string) (string, error) {
	p.mu.Lock()
	id, ok := p.recordIds[line][ip]
	p.mu.Unlock()
	if ok {
		return id, nil
	}

	if _, err := p.ListRecords(ctx, line); err != nil {
		return "", err
	}

	p.mu.Lock()
	id, ok = p.recordIds[line][ip]
	p.mu.Unlock()
	if !ok {
		return "", errors.Errorf("dnspod record for %s on %s not found", ip, line)
	}
	return id, nil
}
