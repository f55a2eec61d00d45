// Package snapshot accumulates exported records and writes them out.
//
// A Marketplace is append-only: records are kept per resource in fetch
// order, and resources are kept in the order they were first added. Sinks
// persist a finished Marketplace.
package snapshot

import (
	"bytes"
	"sync"
	"time"

	"github.com/Sternrassler/oc-marketplace-export/pkg/record"
	"gopkg.in/yaml.v3"
)

// Meta describes an export.
type Meta struct {
	MarketplaceID string    `json:"MarketplaceID" yaml:"MarketplaceID"`
	ExportedAt    time.Time `json:"ExportedAt" yaml:"ExportedAt"`
	Version       string    `json:"Version" yaml:"Version"`
}

// Marketplace is the exported object graph. Safe for concurrent use.
type Marketplace struct {
	Meta Meta

	mu      sync.RWMutex
	order   []string
	records map[string][]*record.Record
}

// NewMarketplace creates an empty aggregate for marketplaceID.
func NewMarketplace(marketplaceID, version string) *Marketplace {
	return &Marketplace{
		Meta: Meta{
			MarketplaceID: marketplaceID,
			ExportedAt:    time.Now().UTC(),
			Version:       version,
		},
		records: make(map[string][]*record.Record),
	}
}

// AddRecords appends records under resource. An empty batch still
// registers the resource so it appears in the output.
func (m *Marketplace) AddRecords(resource string, records []*record.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[resource]; !ok {
		m.order = append(m.order, resource)
		m.records[resource] = []*record.Record{}
	}
	m.records[resource] = append(m.records[resource], records...)
}

// Records returns the records of resource in insertion order.
func (m *Marketplace) Records(resource string) []*record.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src := m.records[resource]
	out := make([]*record.Record, len(src))
	copy(out, src)
	return out
}

// Count returns the number of records under resource.
func (m *Marketplace) Count(resource string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records[resource])
}

// Total returns the number of records across all resources.
func (m *Marketplace) Total() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, recs := range m.records {
		n += len(recs)
	}
	return n
}

// Resources returns resource names in first-insertion order.
func (m *Marketplace) Resources() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// MarshalYAML renders {Meta, Objects} with resources in insertion order.
func (m *Marketplace) MarshalYAML() (interface{}, error) {
	var meta yaml.Node
	if err := meta.Encode(m.Meta); err != nil {
		return nil, err
	}

	objects := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, name := range m.Resources() {
		seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, r := range m.Records(name) {
			var item yaml.Node
			if err := item.Encode(r); err != nil {
				return nil, err
			}
			seq.Content = append(seq.Content, &item)
		}
		objects.Content = append(objects.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: name}, seq)
	}

	return &yaml.Node{
		Kind: yaml.MappingNode,
		Tag:  "!!map",
		Content: []*yaml.Node{
			{Kind: yaml.ScalarNode, Tag: "!!str", Value: "Meta"}, &meta,
			{Kind: yaml.ScalarNode, Tag: "!!str", Value: "Objects"}, objects,
		},
	}, nil
}

// MarshalJSON renders {Meta, Objects} with resources in insertion order.
func (m *Marketplace) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"Meta":`)
	meta, err := marshalMeta(m.Meta)
	if err != nil {
		return nil, err
	}
	buf.Write(meta)
	buf.WriteString(`,"Objects":{`)
	for i, name := range m.Resources() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := marshalString(name)
		buf.Write(key)
		buf.WriteByte(':')
		list, err := marshalRecords(m.Records(name))
		if err != nil {
			return nil, err
		}
		buf.Write(list)
	}
	buf.WriteString("}}")
	return buf.Bytes(), nil
}
