package ffmpeg

import "testing"

func TestFilter_String(t *testing.T) {
	tests := []struct {
		name string
		f    Filter
		want string
	}{
		{"scale", Scale(1920, 1080), "scale=1920:1080:force_original_aspect_ratio=decrease"},
		{"pad", Pad(1920, 1080, "black"), "pad=1920:1080:(ow-iw)/2:(oh-ih)/2:color=black"},
		{"concat", Concat(3, 1, 0), "concat=n=3:v=1:a=0"},
		{"amix", AMix(2), "amix=inputs=2:duration=longest:dropout_transition=0"},
		{"volume", Volume(0.3), "volume=0.3"},
		{"adelay", ADelay(2500), "adelay=delays=2500:all=1"},
		{"no args", anull(), "anull"},
		{"escaped", Filter{Name: "drawtext", Args: []Arg{{Key: "text", Value: "a:b,c"}}}, `drawtext=text=a\:b\,c`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.f.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGraph_String(t *testing.T) {
	var g Graph
	g.Add([]string{"0:v"}, []string{"v0"}, Scale(640, 360), SetSAR())
	g.Add([]string{"1:v"}, []string{"v1"}, Scale(640, 360), SetSAR())
	g.Add([]string{"v0", "v1"}, []string{"vout"}, Concat(2, 1, 0))

	want := "[0:v]scale=640:360:force_original_aspect_ratio=decrease,setsar=1[v0];" +
		"[1:v]scale=640:360:force_original_aspect_ratio=decrease,setsar=1[v1];" +
		"[v0][v1]concat=n=2:v=1:a=0[vout]"
	if got := g.String(); got != want {
		t.Errorf("String() =\n%s\nwant\n%s", got, want)
	}
	if err := g.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
	if !g.Has("concat") || g.Has("amix") {
		t.Error("Has() reported wrong filters")
	}
}

func TestGraph_Validate(t *testing.T) {
	tests := []struct {
		name  string
		build func(g *Graph)
	}{
		{"undefined input", func(g *Graph) {
			g.Add([]string{"missing"}, []string{"out"}, anull())
		}},
		{"redefined output", func(g *Graph) {
			g.Add([]string{"0:a"}, []string{"a"}, anull())
			g.Add([]string{"1:a"}, []string{"a"}, anull())
		}},
		{"consumed twice", func(g *Graph) {
			g.Add([]string{"0:a"}, []string{"a"}, anull())
			g.Add([]string{"a"}, []string{"b"}, anull())
			g.Add([]string{"a"}, []string{"c"}, anull())
		}},
		{"empty chain", func(g *Graph) {
			g.Add([]string{"0:a"}, []string{"a"})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var g Graph
			tt.build(&g)
			if err := g.Validate(); err == nil {
				t.Fatal("Validate() expected error")
			}
		})
	}
}

func anull() Filter {
	return Filter{Name: "anull"}
}
