// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rpc is the transport-facing surface over a meta.Meta
// registry: it decodes the wire-format messages described by spec §6
// and dispatches them to the registry's CRUD contract. The transport
// itself (the RPC framework that carries these request/response
// structs between processes) is out of scope (spec §1); this package
// only defines the interface and message shapes a transport would
// bind to.
package rpc

import (
	"context"

	"github.com/solidcoredata/vmeta/meta"
)

// MetaService is the interface a transport binds requests to.
type MetaService interface {
	Alive(ctx context.Context, req *AliveRequest) (*AliveResponse, error)
	CreateTable(ctx context.Context, req *CreateTableRequest) (*CreateTableResponse, error)
	DropTable(ctx context.Context, req *DropTableRequest) (*DropTableResponse, error)
	UpdateTagValue(ctx context.Context, req *UpdateTagValueRequest) (*UpdateTagValueResponse, error)
}

type AliveRequest struct{}
type AliveResponse struct{}

// CreateTableRequest carries the big-endian CreateTableMsg framing
// described by spec §6, undecoded: decoding happens inside Service so
// a malformed message surfaces as a meta.Error, not a panic at the
// transport boundary.
type CreateTableRequest struct {
	Message []byte
}

type CreateTableResponse struct {
	UID uint64
	TID uint32
}

type DropTableRequest struct {
	UID uint64
}

type DropTableResponse struct{}

type UpdateTagValueRequest struct {
	Message []byte
}

type UpdateTagValueResponse struct{}

// Service implements MetaService over a single shard's registry.
type Service struct {
	Registry *meta.Meta
}

func (s *Service) Alive(ctx context.Context, req *AliveRequest) (*AliveResponse, error) {
	return &AliveResponse{}, nil
}

func (s *Service) CreateTable(ctx context.Context, req *CreateTableRequest) (*CreateTableResponse, error) {
	msg, err := meta.DecodeCreateTableMsg(req.Message)
	if err != nil {
		return nil, err
	}
	t, err := s.Registry.CreateTable(ctx, msg.ToCfg())
	if err != nil {
		return nil, err
	}
	return &CreateTableResponse{UID: t.UID(), TID: t.TID()}, nil
}

func (s *Service) DropTable(ctx context.Context, req *DropTableRequest) (*DropTableResponse, error) {
	if err := s.Registry.DropTable(ctx, req.UID); err != nil {
		return nil, err
	}
	return &DropTableResponse{}, nil
}

func (s *Service) UpdateTagValue(ctx context.Context, req *UpdateTagValueRequest) (*UpdateTagValueResponse, error) {
	msg, err := meta.DecodeUpdateTagValMsg(req.Message)
	if err != nil {
		return nil, err
	}
	if err := s.Registry.UpdateTagValue(ctx, msg); err != nil {
		return nil, err
	}
	return &UpdateTagValueResponse{}, nil
}
