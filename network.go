package stackgan

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
)

// Network Abstraction for sequential stack of layers.
//
// Name - prefix for names of computed nodes
// Layers - simple sequence of layers
//
// Fwd could be called several times: every call builds a new application of the same learnables.
type Network struct {
	Name   string
	Layers []*Layer
}

// Learnables Returns learnables nodes
func (net *Network) Learnables() gorgonia.Nodes {
	learnables := make(gorgonia.Nodes, 0, 2*len(net.Layers))
	for _, l := range net.Layers {
		if l != nil {
			learnables = append(learnables, l.Learnables()...)
		}
	}
	return learnables
}

// Fwd Initializates feedforward for provided input and returns activated output of the last layer
func (net *Network) Fwd(input *gorgonia.Node) (*gorgonia.Node, error) {
	networkName := "network"
	if net.Name != "" {
		networkName = net.Name
	}
	if len(net.Layers) == 0 {
		return nil, errors.Wrap(ErrUninitialized, fmt.Sprintf("Network '%s' must have one layer atleast", networkName))
	}

	lastActivatedLayer := input
	for i, l := range net.Layers {
		if l == nil {
			return nil, errors.Wrap(ErrUninitialized, fmt.Sprintf("Network's layer #%d is nil", i))
		}
		if l.WeightNode == nil && !noWeightsAllowed(l.Type) {
			return nil, errors.Wrap(ErrUninitialized, fmt.Sprintf("Network's layer's #%d WeightNode is nil", i))
		}
		// Feedforward input through i-th layer
		layerNonActivated, err := l.Fwd(lastActivatedLayer)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("[%s, Layer #%d] Can't feedforward input before activation", networkName, i))
		}
		gorgonia.WithName(fmt.Sprintf("%s_%d", networkName, i))(layerNonActivated)
		activation := l.Activation
		if activation == nil {
			activation = NoActivation
		}
		// Activate i-th layer's output
		layerActivated, err := activation(layerNonActivated)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Can't apply activation function to non-activated output of %s's layer #%d", networkName, i))
		}
		gorgonia.WithName(fmt.Sprintf("%s_activated_%d", networkName, i))(layerActivated)
		lastActivatedLayer = layerActivated
	}
	return lastActivatedLayer, nil
}
