// Copyright 2025 MixGo Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim provides the optimizer catalog.
//
// Optimizers are built directly:
//
//	opt, err := optim.NewLion(optim.Params(model.Parameters()...), optim.DefaultLionConfig())
//
// or from a config mapping, with per-parameter overrides:
//
//	opt, err := optim.Build(cfg, nn.NamedParameters("", model))
//
// Each Step takes the gradients keyed by parameter tensor; parameters
// without a gradient are left alone.
package optim

import (
	"github.com/mixgo-ml/mixgo/internal/config"
	"github.com/mixgo-ml/mixgo/internal/nn"
	"github.com/mixgo-ml/mixgo/internal/optim"
)

// Core types.
type (
	Optimizer  = optim.Optimizer
	Gradients  = optim.Gradients
	ParamSet   = optim.ParamSet
	ParamGroup = optim.ParamGroup
	HVP        = optim.HVP
	Factory    = optim.Factory
)

// Optimizers and their configurations.
type (
	SGD              = optim.SGD
	SGDConfig        = optim.SGDConfig
	Adam             = optim.Adam
	AdamConfig       = optim.AdamConfig
	AdaBelief        = optim.AdaBelief
	AdaBeliefConfig  = optim.AdaBeliefConfig
	AdaBound         = optim.AdaBound
	AdaBoundConfig   = optim.AdaBoundConfig
	Adafactor        = optim.Adafactor
	AdafactorConfig  = optim.AdafactorConfig
	Adahessian       = optim.Adahessian
	AdahessianConfig = optim.AdahessianConfig
	AdamP            = optim.AdamP
	AdamPConfig      = optim.AdamPConfig
	Adan             = optim.Adan
	AdanConfig       = optim.AdanConfig
	LAMB             = optim.LAMB
	LAMBConfig       = optim.LAMBConfig
	LARS             = optim.LARS
	LARSConfig       = optim.LARSConfig
	Lion             = optim.Lion
	LionConfig       = optim.LionConfig
	MADGRAD          = optim.MADGRAD
	MADGRADConfig    = optim.MADGRADConfig
	NvNovoGrad       = optim.NvNovoGrad
	NvNovoGradConfig = optim.NvNovoGradConfig
	SGDP             = optim.SGDP
	SGDPConfig       = optim.SGDPConfig
	SophiaG          = optim.SophiaG
	SophiaConfig     = optim.SophiaConfig
)

// Errors.
var (
	ErrInvalidHyperparameter = optim.ErrInvalidHyperparameter
	ErrNoHVP                 = optim.ErrNoHVP
)

// Constructors.
var (
	NewSGD        = optim.NewSGD
	NewAdam       = optim.NewAdam
	NewAdamW      = optim.NewAdamW
	NewAdaBelief  = optim.NewAdaBelief
	NewAdaBound   = optim.NewAdaBound
	NewAdaBoundW  = optim.NewAdaBoundW
	NewAdafactor  = optim.NewAdafactor
	NewAdahessian = optim.NewAdahessian
	NewAdamP      = optim.NewAdamP
	NewAdan       = optim.NewAdan
	NewLAMB       = optim.NewLAMB
	NewLARS       = optim.NewLARS
	NewLion       = optim.NewLion
	NewMADGRAD    = optim.NewMADGRAD
	NewNvNovoGrad = optim.NewNvNovoGrad
	NewSGDP       = optim.NewSGDP
	NewSophiaG    = optim.NewSophiaG
)

// Default configurations.
var (
	DefaultSGDConfig        = optim.DefaultSGDConfig
	DefaultAdamConfig       = optim.DefaultAdamConfig
	DefaultAdamWConfig      = optim.DefaultAdamWConfig
	DefaultAdaBeliefConfig  = optim.DefaultAdaBeliefConfig
	DefaultAdaBoundConfig   = optim.DefaultAdaBoundConfig
	DefaultAdafactorConfig  = optim.DefaultAdafactorConfig
	DefaultAdahessianConfig = optim.DefaultAdahessianConfig
	DefaultAdamPConfig      = optim.DefaultAdamPConfig
	DefaultAdanConfig       = optim.DefaultAdanConfig
	DefaultLAMBConfig       = optim.DefaultLAMBConfig
	DefaultLARSConfig       = optim.DefaultLARSConfig
	DefaultLionConfig       = optim.DefaultLionConfig
	DefaultMADGRADConfig    = optim.DefaultMADGRADConfig
	DefaultNvNovoGradConfig = optim.DefaultNvNovoGradConfig
	DefaultSGDPConfig       = optim.DefaultSGDPConfig
	DefaultSophiaConfig     = optim.DefaultSophiaConfig
)

// Helpers.
var (
	Params              = optim.Params
	Float32             = optim.Float32
	ClipGradNorm        = optim.ClipGradNorm
	FiniteDifferenceHVP = optim.FiniteDifferenceHVP
	LayerID             = optim.LayerID
	Registered          = optim.Registered
	Register            = optim.Register
)

// Build constructs the optimizer described by cfg over the named
// parameters.
func Build(cfg config.Config, named []nn.NamedParameter) (Optimizer, error) {
	return optim.Build(cfg, named)
}
