package stackgan

import (
	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
)

// ResidualBlock conv-BN-ReLU-conv-BN, plus block input, then ReLU. Channels are preserved.
//
// The skip connection bypasses the second normalization: it is added to the normalized output.
type ResidualBlock struct {
	body *Network
	skip bool
}

func newResidualBlock(pb *paramBuilder, name string, channels int, eps float64) *ResidualBlock {
	return &ResidualBlock{
		body: &Network{
			Name: name,
			Layers: []*Layer{
				pb.conv(name+"_conv0", channels, channels, 3, 1, 1, true, eps, Rectify),
				pb.conv(name+"_conv1", channels, channels, 3, 1, 1, true, eps, NoActivation),
			},
		},
		skip: true,
	}
}

// Learnables Returns learnables nodes
func (b *ResidualBlock) Learnables() gorgonia.Nodes {
	if b.body == nil {
		return nil
	}
	return b.body.Learnables()
}

// Fwd Initializates feedforward for (N, C, H, W) input
func (b *ResidualBlock) Fwd(input *gorgonia.Node) (*gorgonia.Node, error) {
	if b.body == nil {
		return nil, errors.Wrap(ErrUninitialized, "ResidualBlock")
	}
	out, err := b.body.Fwd(input)
	if err != nil {
		return nil, err
	}
	if b.skip {
		out, err = gorgonia.Add(out, input)
		if err != nil {
			return nil, errors.Wrap(err, "Can't add block input")
		}
	}
	return gorgonia.Rectify(out)
}
