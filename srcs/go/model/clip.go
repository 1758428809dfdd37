package model

// ClipGradValue clamps every gradient element into [-clip, clip].
func ClipGradValue(ps []*Parameter, clip float32) {
	for _, p := range ps {
		for i, g := range p.Grad {
			if g > clip {
				p.Grad[i] = clip
			} else if g < -clip {
				p.Grad[i] = -clip
			}
		}
	}
}

func ZeroGrad(ps []*Parameter) {
	for _, p := range ps {
		for i := range p.Grad {
			p.Grad[i] = 0
		}
	}
}
