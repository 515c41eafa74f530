package markmap

import (
	"context"
	"fmt"

	"lattice/api/internal/model"
	"lattice/api/internal/tree"
)

// TreeLoader loads and assembles the NodeTree of a document.
type TreeLoader interface {
	LoadTree(ctx context.Context, docID model.DocumentID) (*tree.NodeTree, error)
}

// Service runs the markmap pipeline: load, transform, initialize, project
// and fold.
type Service struct {
	trees       TreeLoader
	options     OptionsProvider
	transformer *Transformer
}

func NewService(trees TreeLoader, options OptionsProvider, transformer *Transformer) *Service {
	if options == nil {
		options = StaticOptions(DefaultOptions())
	}
	return &Service{trees: trees, options: options, transformer: transformer}
}

func (s *Service) build(ctx context.Context, userID string, docID model.DocumentID) (*Node, Options, error) {
	t, err := s.trees.LoadTree(ctx, docID)
	if err != nil {
		return nil, Options{}, err
	}
	opts, err := s.options.Resolve(ctx, userID, docID)
	if err != nil {
		return nil, Options{}, err
	}
	pure, err := s.transformer.Transform(t)
	if err != nil {
		return nil, Options{}, err
	}
	return Initialize(pure), opts, nil
}

// Execute returns the whole markmap with every level loaded.
func (s *Service) Execute(ctx context.Context, userID string, docID model.DocumentID) (*Node, error) {
	node, opts, err := s.build(ctx, userID, docID)
	if err != nil {
		return nil, err
	}
	ApplyLoadMode(node, LoadFull)
	Fold(node, opts)
	return node, nil
}

// ExecuteRoot returns the markmap projected with the root load mode.
func (s *Service) ExecuteRoot(ctx context.Context, userID string, docID model.DocumentID) (*Node, error) {
	node, opts, err := s.build(ctx, userID, docID)
	if err != nil {
		return nil, err
	}
	ApplyLoadMode(node, opts.LoadModeRoot)
	Fold(node, opts)
	return node, nil
}

// ExecuteChildren returns the children of one markmap node, each projected
// with the child load mode.
func (s *Service) ExecuteChildren(ctx context.Context, userID string, docID model.DocumentID, nodeID string) ([]*Node, error) {
	node, opts, err := s.build(ctx, userID, docID)
	if err != nil {
		return nil, err
	}
	target := node.Find(nodeID)
	if target == nil {
		return nil, fmt.Errorf("%w: %s", tree.ErrNodeNotFound, nodeID)
	}
	for _, child := range target.Children {
		ApplyLoadMode(child, opts.LoadModeChild)
		Fold(child, opts)
	}
	return target.Children, nil
}

// ExecuteNode returns one markmap node projected with the child load mode.
func (s *Service) ExecuteNode(ctx context.Context, userID string, docID model.DocumentID, nodeID string) (*Node, error) {
	node, opts, err := s.build(ctx, userID, docID)
	if err != nil {
		return nil, err
	}
	target := node.Find(nodeID)
	if target == nil {
		return nil, fmt.Errorf("%w: %s", tree.ErrNodeNotFound, nodeID)
	}
	ApplyLoadMode(target, opts.LoadModeChild)
	Fold(target, opts)
	return target, nil
}
