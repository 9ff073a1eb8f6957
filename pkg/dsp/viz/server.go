package viz

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/plot/vg"
)

type ImageContainer struct {
	name       string
	generation uint64
	data       []byte
}

type Server struct {
	figure         *Figure
	images         map[string]*ImageContainer
	mu             sync.RWMutex
	port           int
	srv            *http.Server
	updateInterval time.Duration
	enabled        bool
	width          vg.Length
	height         vg.Length
	logger         zerolog.Logger
}

func NewServer(port int, updateInterval time.Duration, figure *Figure) *Server {
	return &Server{
		figure:         figure,
		images:         make(map[string]*ImageContainer),
		port:           port,
		srv:            &http.Server{Addr: fmt.Sprintf(":%d", port)},
		updateInterval: updateInterval,
		enabled:        true,
		width:          8 * vg.Inch,
		height:         3 * vg.Inch,
		logger:         log.Logger,
	}
}

func (s *Server) WithLogger(logger zerolog.Logger) *Server {
	s.logger = logger
	return s
}

func (s *Server) Enable(enable bool) {
	s.mu.Lock()
	s.enabled = enable
	s.mu.Unlock()
}

func (s *Server) SetUpdateInterval(interval time.Duration) {
	s.mu.Lock()
	s.updateInterval = interval
	s.mu.Unlock()
}

func (s *Server) SetImageSize(width, height vg.Length) {
	s.mu.Lock()
	s.width, s.height = width, height
	s.images = make(map[string]*ImageContainer)
	s.mu.Unlock()
}

func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}

// image renders a panel at most once per figure generation.
func (s *Server) image(name string) (*ImageContainer, error) {
	panel, generation, ok := s.figure.publishedPanel(name)
	if !ok {
		return nil, nil
	}

	s.mu.RLock()
	cached, ok := s.images[name]
	width, height := s.width, s.height
	s.mu.RUnlock()
	if ok && cached.generation == generation {
		return cached, nil
	}

	data, err := panel.Render(width, height, "png")
	if err != nil {
		return nil, err
	}
	img := &ImageContainer{name: name, generation: generation, data: data}

	s.mu.Lock()
	if cur, ok := s.images[name]; !ok || cur.generation < generation {
		s.images[name] = img
	}
	s.mu.Unlock()
	return img, nil
}

func (s *Server) Handler() http.Handler {
	handler := httprouter.New()

	handler.GET("/", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		s.mu.RLock()
		interval := s.updateInterval
		enabled := s.enabled
		s.mu.RUnlock()

		names := s.figure.PanelNames()

		w.Header().Add("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>rxscope</title></head>`))

		refresh := 0
		if enabled {
			refresh = int(interval.Milliseconds())
		}
		w.Write([]byte(fmt.Sprintf(`
		<script type="text/javascript">
			var toggleRefresh = true;
			function toggleOn() {
				toggleRefresh = !toggleRefresh;
			}
			window.onload = function() {
				if (%d <= 0) {
					return;
				}
				for (var i = 0; i < %d; i++) {
					var img = document.getElementById('graph-' + i);
					setInterval(function(image) {
						if (toggleRefresh) {
							image.src = image.src.split("?")[0] + "?" + new Date().getTime();
						}
					}, %d, img);
				}
			}
		</script>`, refresh, len(names), refresh)))
		w.Write([]byte(`<body style='background-color: black'>`))
		w.Write([]byte(`<button onclick="toggleOn()">Refresh?</button>`))

		w.Write([]byte(`<div style="display: flex; flex-direction: row; flex-wrap: wrap">`))
		for idx, name := range names {
			w.Write([]byte(fmt.Sprintf(`<div><img id="graph-%d" alt="%s" src="/img/%s?%d" /></div>`,
				idx, html.EscapeString(name), url.PathEscape(name), time.Now().UnixMicro())))
		}
		w.Write([]byte(`</div>`))

		w.Write([]byte(`</body></html>`))
	})

	handler.GET("/img/:panel", func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
		name := params.ByName("panel")

		img, err := s.image(name)
		if err != nil {
			s.logger.Error().Err(err).Str("panel", name).Msg("error rendering panel")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if img == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		w.Header().Add("Content-Type", "image/png")
		w.Write(img.data)
	})

	return handler
}

// Run serves until ctx is done or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	s.srv.Handler = s.Handler()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.Stop(shutdownCtx)
	}()

	s.logger.Info().Int("port", s.port).Msg("starting viz server")
	err := s.srv.ListenAndServe()
	switch {
	case err == http.ErrServerClosed:
		return nil
	default:
		return err
	}
}
