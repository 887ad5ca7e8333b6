package output

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chaos-io/bgblend/pipeline"
)

const boundary = "frame"

// Status 运行状态来源，*pipeline.Orchestrator 实现了该接口
type Status interface {
	RunID() string
	State() pipeline.State
	Stats() pipeline.Snapshot
}

// Streamer 通过 HTTP 对外提供最新合成帧，MJPEG 流可直接在浏览器里播放
type Streamer struct {
	logger  *zap.Logger
	quality int
	engine  *gin.Engine
	srv     *http.Server

	// done 关闭后所有 MJPEG 连接退出，Shutdown 不会取消进行中请求的 ctx
	done      chan struct{}
	closeOnce sync.Once

	mu      sync.RWMutex
	latest  []byte
	index   int
	updated chan struct{}
	status  Status
}

func NewStreamer(listen string, quality int, logger *zap.Logger) *Streamer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if quality <= 0 || quality > 100 {
		quality = 80
	}
	s := &Streamer{
		logger:  logger,
		quality: quality,
		index:   -1,
		updated: make(chan struct{}),
		done:    make(chan struct{}),
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(logger))
	r.GET("/health", s.health)
	r.GET("/status", s.statusHandler)
	r.GET("/snapshot.jpg", s.snapshot)
	r.GET("/stream.mjpg", s.stream)
	s.engine = r
	s.srv = &http.Server{Addr: listen, Handler: r}
	return s
}

// Attach 绑定运行状态，/status 在绑定之前返回 503
func (s *Streamer) Attach(status Status) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

func (s *Streamer) Handler() http.Handler {
	return s.engine
}

// Start 在后台监听，监听失败通过返回的 channel 报告
func (s *Streamer) Start() <-chan error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		errc := make(chan error, 1)
		errc <- fmt.Errorf("listen %s: %w", s.srv.Addr, err)
		close(errc)
		return errc
	}
	return s.Serve(ln)
}

// Serve 在给定的 listener 上后台提供服务
func (s *Streamer) Serve(ln net.Listener) <-chan error {
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("streamer listening", zap.String("addr", ln.Addr().String()))
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()
	return errc
}

// Emit 编码并替换最新帧，唤醒所有 MJPEG 客户端
func (s *Streamer) Emit(_ context.Context, index int, frame *image.NRGBA) error {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, frame, imaging.JPEG, imaging.JPEGQuality(s.quality)); err != nil {
		return fmt.Errorf("encode frame %d: %w", index, err)
	}

	s.mu.Lock()
	s.latest = buf.Bytes()
	s.index = index
	close(s.updated)
	s.updated = make(chan struct{})
	s.mu.Unlock()
	return nil
}

// Close 先结束 MJPEG 连接再关闭服务，可重复调用
func (s *Streamer) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

func (s *Streamer) frame() ([]byte, int, <-chan struct{}) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.index, s.updated
}

func (s *Streamer) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Streamer) statusHandler(c *gin.Context) {
	s.mu.RLock()
	status := s.status
	s.mu.RUnlock()
	if status == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "pipeline not attached"})
		return
	}

	_, index, _ := s.frame()
	c.JSON(http.StatusOK, gin.H{
		"run_id":     status.RunID(),
		"state":      status.State().String(),
		"stats":      status.Stats(),
		"last_frame": index,
	})
}

func (s *Streamer) snapshot(c *gin.Context) {
	data, index, _ := s.frame()
	if data == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no frame yet"})
		return
	}
	c.Header("X-Frame-Index", strconv.Itoa(index))
	c.Data(http.StatusOK, "image/jpeg", data)
}

// stream multipart/x-mixed-replace，每来一帧写一个 part，客户端断开时返回
func (s *Streamer) stream(c *gin.Context) {
	c.Header("Content-Type", "multipart/x-mixed-replace; boundary="+boundary)
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)

	ctx := c.Request.Context()
	for {
		data, index, updated := s.frame()
		if data != nil {
			if err := writePart(c.Writer, data, index); err != nil {
				s.logger.Debug("stream client gone", zap.Error(err))
				return
			}
			c.Writer.Flush()
		}
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-updated:
		}
	}
}

func writePart(w gin.ResponseWriter, data []byte, index int) error {
	header := fmt.Sprintf("--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\nX-Frame-Index: %d\r\n\r\n",
		boundary, len(data), index)
	if _, err := w.WriteString(header); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err := w.WriteString("\r\n")
	return err
}
