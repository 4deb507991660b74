package core

import (
	"gopkg.in/yaml.v3"
)

// DecodeConfigSnapshot parses a YAML document into a ConfigSnapshot,
// decoding on top of DefaultConfigSnapshot() so a document overriding
// only a handful of fields still produces a fully-populated, Validate-able
// snapshot, then runs Validate before returning. Reading the document off
// disk (or any other external source) is the external shell boundary's
// job, not this module's — per the Non-goals, config-file loading and
// hot-reload are excluded; this helper only turns bytes already in hand
// into a ConfigSnapshot.
//
// Grounded on pkg/routing/workflow.go's loadWorkflowFile: yaml.Unmarshal
// into the target struct, decode errors wrapped rather than returned bare.
func DecodeConfigSnapshot(doc []byte) (ConfigSnapshot, error) {
	const op = "DecodeConfigSnapshot"
	cfg := DefaultConfigSnapshot()
	if err := yaml.Unmarshal(doc, &cfg); err != nil {
		return ConfigSnapshot{}, NewError(op, KindConfig, err).WithMessage("parsing config document")
	}
	if err := cfg.Validate(); err != nil {
		return ConfigSnapshot{}, err
	}
	return cfg, nil
}

// EncodeConfigSnapshot serializes cfg to YAML, the inverse of
// DecodeConfigSnapshot — used by tests asserting round-trip fidelity and
// by the external shell boundary to persist an operator's edited snapshot.
func EncodeConfigSnapshot(cfg ConfigSnapshot) ([]byte, error) {
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, NewError("EncodeConfigSnapshot", KindConfig, err).WithMessage("marshaling config snapshot")
	}
	return out, nil
}
