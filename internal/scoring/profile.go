// Package scoring ranks snapshots with profile-weighted metric blends.
package scoring

import (
	"fmt"
	"sort"
)

// Weights is one profile section's coefficient map.
type Weights map[string]float64

// Profile is an immutable bundle of scoring weights. Profiles are resolved
// once per cycle; switches take effect on the next cycle, never mid-cycle.
type Profile struct {
	Name      string
	Liquidity Weights // qvol, depth
	Vol       Weights // atr
	Momentum  Weights // ret_15, ret_1
	Cost      Weights // spread, slip
	Carry     Weights // funding, basis
	Structure Weights // volume_z, ofi, volatility, velocity, anomaly, residual
	Edges     Weights // liquidity, momentum, volatility, micro
}

// presets mirror the production weight tables: scalp favors liquidity and
// low cost, swing leans on medium-horizon momentum, news rewards volatility
// and fresh momentum.
var presets = map[string]Profile{
	"scalp": {
		Name:      "scalp",
		Liquidity: Weights{"qvol": 4.0, "depth": 3.5},
		Vol:       Weights{"atr": 1.2},
		Momentum:  Weights{"ret_15": 1.5, "ret_1": 1.0},
		Cost:      Weights{"spread": 3.0, "slip": 2.5},
		Carry:     Weights{"funding": 0.5, "basis": 0.3},
		Structure: Weights{"volume_z": 1.2, "ofi": 3.5, "volatility": 1.4, "velocity": 0.8, "anomaly": 0.7, "residual": 1.2},
		Edges:     Weights{"liquidity": 1.6, "momentum": 1.2, "volatility": 0.9, "micro": 1.5},
	},
	"swing": {
		Name:      "swing",
		Liquidity: Weights{"qvol": 2.5, "depth": 2.5},
		Vol:       Weights{"atr": 1.8},
		Momentum:  Weights{"ret_15": 2.2, "ret_1": 0.8},
		Cost:      Weights{"spread": 2.0, "slip": 1.5},
		Carry:     Weights{"funding": 0.8, "basis": 0.6},
		Structure: Weights{"volume_z": 1.0, "ofi": 2.5, "volatility": 1.6, "velocity": 1.0, "anomaly": 0.6, "residual": 0.9},
		Edges:     Weights{"liquidity": 1.3, "momentum": 1.6, "volatility": 1.1, "micro": 1.1},
	},
	"news": {
		Name:      "news",
		Liquidity: Weights{"qvol": 3.0, "depth": 2.0},
		Vol:       Weights{"atr": 2.2},
		Momentum:  Weights{"ret_15": 2.8, "ret_1": 1.5},
		Cost:      Weights{"spread": 2.2, "slip": 1.8},
		Carry:     Weights{"funding": 0.3, "basis": 0.2},
		Structure: Weights{"volume_z": 1.5, "ofi": 2.8, "volatility": 1.2, "velocity": 1.4, "anomaly": 0.8, "residual": 1.0},
		Edges:     Weights{"liquidity": 1.4, "momentum": 1.8, "volatility": 1.2, "micro": 1.3},
	},
}

// ProfileNames lists the available presets in stable order.
func ProfileNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveProfile returns a preset merged with optional section overrides.
// Unknown profile names are rejected; override validation happens at config
// load, so by the time we get here the shape is trusted.
func ResolveProfile(name string, overrides map[string]map[string]float64) (Profile, error) {
	base, ok := presets[name]
	if !ok {
		return Profile{}, fmt.Errorf("unknown profile %q (available: %v)", name, ProfileNames())
	}
	p := base.clone()
	for section, weights := range overrides {
		dst := p.section(section)
		if dst == nil {
			return Profile{}, fmt.Errorf("profile %q: unknown section %q", name, section)
		}
		for key, value := range weights {
			dst[key] = value
		}
	}
	return p, nil
}

func (p Profile) clone() Profile {
	cp := p
	cp.Liquidity = cloneWeights(p.Liquidity)
	cp.Vol = cloneWeights(p.Vol)
	cp.Momentum = cloneWeights(p.Momentum)
	cp.Cost = cloneWeights(p.Cost)
	cp.Carry = cloneWeights(p.Carry)
	cp.Structure = cloneWeights(p.Structure)
	cp.Edges = cloneWeights(p.Edges)
	return cp
}

func (p *Profile) section(name string) Weights {
	switch name {
	case "liq":
		return p.Liquidity
	case "vol":
		return p.Vol
	case "mom":
		return p.Momentum
	case "cost":
		return p.Cost
	case "carry":
		return p.Carry
	case "structure":
		return p.Structure
	case "edges":
		return p.Edges
	}
	return nil
}

func cloneWeights(w Weights) Weights {
	cp := make(Weights, len(w))
	for k, v := range w {
		cp[k] = v
	}
	return cp
}
