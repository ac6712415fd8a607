package ffmpeg

import (
	"fmt"
	"strconv"
	"strings"
)

// Arg is one filter option. An empty Key renders the value positionally.
type Arg struct {
	Key   string
	Value string
}

// Filter is a single filter invocation such as scale or amix.
type Filter struct {
	Name string
	Args []Arg
}

func (f Filter) String() string {
	if len(f.Args) == 0 {
		return f.Name
	}
	parts := make([]string, len(f.Args))
	for i, a := range f.Args {
		if a.Key == "" {
			parts[i] = escapeArg(a.Value)
		} else {
			parts[i] = a.Key + "=" + escapeArg(a.Value)
		}
	}
	return f.Name + "=" + strings.Join(parts, ":")
}

// Chain is a linear run of filters reading the labelled Inputs and producing
// the labelled Outputs.
type Chain struct {
	Inputs  []string
	Filters []Filter
	Outputs []string
}

func (c Chain) String() string {
	var b strings.Builder
	for _, in := range c.Inputs {
		b.WriteString("[" + in + "]")
	}
	for i, f := range c.Filters {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(f.String())
	}
	for _, out := range c.Outputs {
		b.WriteString("[" + out + "]")
	}
	return b.String()
}

// Graph is a filter graph built from chains. Streams are connected by name;
// input file streams use the encoder's "N:v" / "N:a" specifiers.
type Graph struct {
	chains []Chain
}

// Add appends a chain to the graph.
func (g *Graph) Add(inputs, outputs []string, filters ...Filter) {
	g.chains = append(g.chains, Chain{Inputs: inputs, Filters: filters, Outputs: outputs})
}

// Chains returns the chains in insertion order.
func (g *Graph) Chains() []Chain {
	out := make([]Chain, len(g.chains))
	copy(out, g.chains)
	return out
}

// Len returns the number of chains.
func (g *Graph) Len() int { return len(g.chains) }

// Has reports whether any chain uses a filter with the given name.
func (g *Graph) Has(name string) bool {
	for _, c := range g.chains {
		for _, f := range c.Filters {
			if f.Name == name {
				return true
			}
		}
	}
	return false
}

// Validate checks that every label is produced once, consumed at most once,
// and only consumed after it has been produced.
func (g *Graph) Validate() error {
	produced := make(map[string]bool)
	consumed := make(map[string]bool)
	for i, c := range g.chains {
		if len(c.Filters) == 0 {
			return fmt.Errorf("chain %d has no filters", i)
		}
		for _, in := range c.Inputs {
			if isFileStream(in) {
				continue
			}
			if !produced[in] {
				return fmt.Errorf("chain %d reads undefined stream %q", i, in)
			}
			if consumed[in] {
				return fmt.Errorf("chain %d reads stream %q twice", i, in)
			}
			consumed[in] = true
		}
		for _, out := range c.Outputs {
			if produced[out] {
				return fmt.Errorf("chain %d redefines stream %q", i, out)
			}
			produced[out] = true
		}
	}
	return nil
}

// String serialises the graph to -filter_complex syntax.
func (g *Graph) String() string {
	parts := make([]string, len(g.chains))
	for i, c := range g.chains {
		parts[i] = c.String()
	}
	return strings.Join(parts, ";")
}

func isFileStream(label string) bool {
	idx := strings.IndexByte(label, ':')
	if idx <= 0 {
		return false
	}
	_, err := strconv.Atoi(label[:idx])
	return err == nil
}

var argEscaper = strings.NewReplacer(`\`, `\\`, `:`, `\:`, `'`, `\'`, `,`, `\,`, `;`, `\;`, `[`, `\[`, `]`, `\]`)

func escapeArg(v string) string {
	return argEscaper.Replace(v)
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Scale fits the input inside w×h, keeping its aspect ratio.
func Scale(w, h int) Filter {
	return Filter{Name: "scale", Args: []Arg{
		{Value: strconv.Itoa(w)},
		{Value: strconv.Itoa(h)},
		{Key: "force_original_aspect_ratio", Value: "decrease"},
	}}
}

// Pad centres the input on a w×h canvas filled with color.
func Pad(w, h int, color string) Filter {
	return Filter{Name: "pad", Args: []Arg{
		{Value: strconv.Itoa(w)},
		{Value: strconv.Itoa(h)},
		{Value: "(ow-iw)/2"},
		{Value: "(oh-ih)/2"},
		{Key: "color", Value: color},
	}}
}

// SetSAR forces square pixels so concat accepts mixed sources.
func SetSAR() Filter {
	return Filter{Name: "setsar", Args: []Arg{{Value: "1"}}}
}

// FPS resamples to a constant frame rate.
func FPS(rate int) Filter {
	return Filter{Name: "fps", Args: []Arg{{Value: strconv.Itoa(rate)}}}
}

// Format converts to the given pixel format.
func Format(pixFmt string) Filter {
	return Filter{Name: "format", Args: []Arg{{Value: pixFmt}}}
}

// Concat joins n segments, each with v video and a audio streams.
func Concat(n, v, a int) Filter {
	return Filter{Name: "concat", Args: []Arg{
		{Key: "n", Value: strconv.Itoa(n)},
		{Key: "v", Value: strconv.Itoa(v)},
		{Key: "a", Value: strconv.Itoa(a)},
	}}
}

// Volume scales an audio stream.
func Volume(v float64) Filter {
	return Filter{Name: "volume", Args: []Arg{{Value: num(v)}}}
}

// ADelay shifts every channel of an audio stream by ms milliseconds.
func ADelay(ms int64) Filter {
	return Filter{Name: "adelay", Args: []Arg{
		{Key: "delays", Value: strconv.FormatInt(ms, 10)},
		{Key: "all", Value: "1"},
	}}
}

// AMix mixes n audio streams; the result lasts as long as the longest input.
func AMix(n int) Filter {
	return Filter{Name: "amix", Args: []Arg{
		{Key: "inputs", Value: strconv.Itoa(n)},
		{Key: "duration", Value: "longest"},
		{Key: "dropout_transition", Value: "0"},
	}}
}

