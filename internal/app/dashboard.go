package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
	"whalewatch/clients/newsfeed"

	"go.uber.org/zap"
)

// DashboardServer exposes the tracker core as plain JSON plus a small
// polling HTML page. Handlers read snapshots; they never hold core
// locks across a response write.
type DashboardServer struct {
	logger   *zap.Logger
	registry *TrackerRegistry
	activity *ActivityLog
	news     *newsfeed.Client

	startTime time.Time
	server    *http.Server
}

func NewDashboardServer(
	logger *zap.Logger,
	registry *TrackerRegistry,
	activity *ActivityLog,
	news *newsfeed.Client,
) *DashboardServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardServer{
		logger:    logger,
		registry:  registry,
		activity:  activity,
		news:      news,
		startTime: time.Now(),
	}
}

// Handler builds the route table. Split out from Serve so tests can
// drive it through httptest.
func (ds *DashboardServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/api/status", ds.handleStatus)
	mux.HandleFunc("/api/trackers", ds.handleTrackers)
	mux.HandleFunc("/api/trackers/", ds.handleTrackerAction)
	mux.HandleFunc("/api/settings", ds.handleSettings)
	mux.HandleFunc("/api/log", ds.handleLog)
	mux.HandleFunc("/api/news", ds.handleNews)

	mux.HandleFunc("/", func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/" {
			http.NotFound(w, req)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(dashboardHTML))
	})

	return mux
}

func (ds *DashboardServer) handleStatus(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, map[string]any{
		"startTime":        ds.startTime,
		"uptime":           time.Since(ds.startTime).Round(time.Second).String(),
		"totalAlertCount":  ds.registry.AlertCount(),
		"activeCategories": ds.registry.ActiveCategories(),
		"globalFeed":       ds.registry.GlobalFeed(),
	})
}

func (ds *DashboardServer) handleTrackers(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, ds.registry.Snapshot())
}

// handleTrackerAction routes /api/trackers/{id}/start, .../stop and the
// start-all / stop-all forms.
func (ds *DashboardServer) handleTrackerAction(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(req.URL.Path, "/api/trackers/")
	ctx := context.WithoutCancel(req.Context())

	switch rest {
	case "start-all":
		ds.registry.StartAll(ctx)
		writeJSON(w, map[string]any{"active": ds.registry.ActiveCategories()})
		return
	case "stop-all":
		ds.registry.StopAll(ctx)
		writeJSON(w, map[string]any{"active": ds.registry.ActiveCategories()})
		return
	}

	parts := strings.Split(rest, "/")
	if len(parts) != 2 {
		http.NotFound(w, req)
		return
	}
	categoryID, action := parts[0], parts[1]

	var err error
	switch action {
	case "start":
		err = ds.registry.Start(ctx, categoryID)
	case "stop":
		err = ds.registry.Stop(ctx, categoryID)
	default:
		http.NotFound(w, req)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, map[string]any{"active": ds.registry.ActiveCategories()})
}

func (ds *DashboardServer) handleSettings(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodGet:
		minScore, autoTrade := ds.registry.Settings()
		writeJSON(w, map[string]any{
			"minScore":  minScore,
			"autoTrade": autoTrade,
		})

	case http.MethodPost:
		var body struct {
			MinScore  int  `json:"minScore"`
			AutoTrade bool `json:"autoTrade"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		if err := ds.registry.UpdateSettings(context.WithoutCancel(req.Context()), body.MinScore, body.AutoTrade); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, map[string]any{
			"minScore":  body.MinScore,
			"autoTrade": body.AutoTrade,
		})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (ds *DashboardServer) handleLog(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, ds.activity.Entries())
}

func (ds *DashboardServer) handleNews(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if ds.news == nil {
		writeJSON(w, []newsfeed.Headline{})
		return
	}
	writeJSON(w, ds.news.Headlines())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// Serve starts the dashboard listener in the background.
func (ds *DashboardServer) Serve(port int) {
	ds.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: ds.Handler(),
	}

	go func() {
		ds.logger.Info("dashboard listening", zap.Int("port", port))
		if err := ds.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			ds.logger.Error("dashboard server error", zap.Error(err))
		}
	}()
}

// Shutdown gracefully stops the listener.
func (ds *DashboardServer) Shutdown(ctx context.Context) error {
	if ds.server == nil {
		return nil
	}
	return ds.server.Shutdown(ctx)
}

const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Whalewatch</title>
    <style>
        :root {
            --bg-primary: #0d1117;
            --bg-secondary: #161b22;
            --bg-tertiary: #21262d;
            --border-color: #30363d;
            --text-primary: #c9d1d9;
            --text-secondary: #8b949e;
            --accent-blue: #58a6ff;
            --accent-green: #3fb950;
            --accent-red: #f85149;
            --accent-yellow: #d29922;
        }
        * { box-sizing: border-box; margin: 0; padding: 0; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, monospace;
            background: var(--bg-primary);
            color: var(--text-primary);
            padding: 20px;
            line-height: 1.5;
        }
        h1 { color: var(--accent-blue); margin-bottom: 20px; font-size: 24px; }
        h2 { color: var(--text-secondary); font-size: 14px; text-transform: uppercase; margin: 20px 0 10px; letter-spacing: 1px; }
        .grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(300px, 1fr)); gap: 16px; }
        .card { background: var(--bg-secondary); border: 1px solid var(--border-color); border-radius: 8px; padding: 16px; }
        .card h3 { color: var(--accent-blue); font-size: 16px; margin-bottom: 12px; }
        .stat-row { display: flex; justify-content: space-between; padding: 5px 0; border-bottom: 1px solid var(--bg-tertiary); }
        .stat-row:last-child { border-bottom: none; }
        .stat-label { color: var(--text-secondary); }
        .stat-value { font-weight: 600; }
        .green { color: var(--accent-green); }
        .red { color: var(--accent-red); }
        .yellow { color: var(--accent-yellow); }
        .tracker-btn { background: var(--bg-tertiary); border: 1px solid var(--border-color); border-radius: 6px; padding: 5px 12px; color: var(--text-primary); cursor: pointer; font-size: 12px; }
        .tracker-btn:hover { border-color: var(--accent-blue); }
        .tracker-btn.running { border-color: var(--accent-green); color: var(--accent-green); }
        .feed-item { background: var(--bg-tertiary); padding: 10px 12px; border-radius: 6px; margin-bottom: 8px; border-left: 3px solid var(--accent-blue); }
        .feed-item .score { color: var(--accent-green); font-weight: bold; }
        .feed-wallet { color: var(--accent-blue); font-family: monospace; font-size: 13px; text-decoration: none; }
        .log-entry { padding: 5px 0; border-bottom: 1px solid var(--bg-tertiary); font-size: 13px; }
        .log-entry .time { color: var(--text-secondary); margin-right: 8px; }
        .log-whale { color: var(--accent-yellow); }
        .log-error { color: var(--accent-red); }
        .log-success { color: var(--accent-green); }
        .news-item { padding: 6px 0; border-bottom: 1px solid var(--bg-tertiary); font-size: 13px; }
        .news-item a { color: var(--text-primary); text-decoration: none; }
        .news-item a:hover { color: var(--accent-blue); }
        .news-source { color: var(--text-secondary); font-size: 11px; }
        .settings-row { display: flex; gap: 10px; align-items: center; margin-top: 10px; }
        .settings-row input[type=number] { width: 70px; background: var(--bg-tertiary); border: 1px solid var(--border-color); border-radius: 4px; padding: 4px 8px; color: var(--text-primary); }
    </style>
</head>
<body>
    <h1>&#128011; Whalewatch</h1>

    <div class="grid" style="margin-bottom: 16px;">
        <div class="card">
            <div class="stat-row"><span class="stat-label">Uptime</span><span id="uptime" class="stat-value">-</span></div>
            <div class="stat-row"><span class="stat-label">Total Alerts</span><span id="totalAlerts" class="stat-value green">-</span></div>
            <div class="stat-row"><span class="stat-label">Active Trackers</span><span id="activeCount" class="stat-value">-</span></div>
        </div>
        <div class="card">
            <h3>Settings</h3>
            <div class="settings-row">
                <span class="stat-label">Min score</span>
                <input type="number" id="minScore" min="0" max="100">
                <label class="stat-label"><input type="checkbox" id="autoTrade"> auto-trade</label>
                <button class="tracker-btn" onclick="saveSettings()">Save</button>
            </div>
            <div class="settings-row">
                <button class="tracker-btn" onclick="trackerAction('start-all')">Start all</button>
                <button class="tracker-btn" onclick="trackerAction('stop-all')">Stop all</button>
            </div>
        </div>
    </div>

    <h2>Trackers</h2>
    <div id="trackers" class="grid"></div>

    <h2>Whale Feed</h2>
    <div class="card"><div id="feed"></div></div>

    <div class="grid" style="margin-top: 16px;">
        <div class="card"><h3>Activity</h3><div id="log"></div></div>
        <div class="card"><h3>News</h3><div id="news"></div></div>
    </div>

    <script>
        function shortAddr(a) {
            return a.length > 12 ? a.substring(0, 6) + '…' + a.substring(a.length - 4) : a;
        }

        async function trackerAction(path) {
            await fetch('/api/trackers/' + path, { method: 'POST' });
            refresh();
        }

        async function saveSettings() {
            await fetch('/api/settings', {
                method: 'POST',
                headers: { 'Content-Type': 'application/json' },
                body: JSON.stringify({
                    minScore: parseInt(document.getElementById('minScore').value, 10),
                    autoTrade: document.getElementById('autoTrade').checked
                })
            });
            refresh();
        }

        let settingsDirty = false;
        document.addEventListener('input', e => {
            if (e.target.id === 'minScore' || e.target.id === 'autoTrade') settingsDirty = true;
        });

        async function refresh() {
            try {
                const [status, trackers, log, news, settings] = await Promise.all([
                    fetch('/api/status').then(r => r.json()),
                    fetch('/api/trackers').then(r => r.json()),
                    fetch('/api/log').then(r => r.json()),
                    fetch('/api/news').then(r => r.json()),
                    fetch('/api/settings').then(r => r.json())
                ]);

                document.getElementById('uptime').textContent = status.uptime;
                document.getElementById('totalAlerts').textContent = status.totalAlertCount;
                document.getElementById('activeCount').textContent = (status.activeCategories || []).length;

                if (!settingsDirty) {
                    document.getElementById('minScore').value = settings.minScore;
                    document.getElementById('autoTrade').checked = settings.autoTrade;
                }

                document.getElementById('trackers').innerHTML = trackers.map(t =>
                    '<div class="card">' +
                    '<h3>' + t.category.label + '</h3>' +
                    '<div class="stat-row"><span class="stat-label">Whales</span><span class="stat-value">' + t.stats.count + '</span></div>' +
                    '<div class="stat-row"><span class="stat-label">Avg score</span><span class="stat-value">' + t.stats.avgScore.toFixed(1) + '</span></div>' +
                    '<div class="stat-row"><span class="stat-label">Volume</span><span class="stat-value">$' + t.stats.volumeUSD.toLocaleString(undefined, {maximumFractionDigits: 0}) + '</span></div>' +
                    '<div style="margin-top: 8px;"><button class="tracker-btn' + (t.isActive ? ' running' : '') + '" ' +
                    'onclick="trackerAction(\'' + t.category.id + '/' + (t.isActive ? 'stop' : 'start') + '\')">' +
                    (t.isActive ? 'Running ■ stop' : 'Stopped ▶ start') + '</button></div>' +
                    '</div>'
                ).join('');

                const feed = status.globalFeed || [];
                document.getElementById('feed').innerHTML = feed.length === 0
                    ? '<div class="stat-label">No whale bets yet</div>'
                    : feed.map(e =>
                        '<div class="feed-item">' +
                        '<a class="feed-wallet" target="_blank" href="https://polymarket.com/profile/' + e.wallet + '">' + shortAddr(e.wallet) + '</a> ' +
                        '<span class="score">' + e.whaleScore + '/100</span> ' +
                        e.side + ' ' + e.outcome + ' $' + e.betSize.toLocaleString(undefined, {maximumFractionDigits: 0}) +
                        '<div class="stat-label">' + e.market + (e.category ? ' · ' + e.category : '') + '</div>' +
                        '</div>'
                    ).join('');

                document.getElementById('log').innerHTML = log.map(e =>
                    '<div class="log-entry log-' + e.severity + '">' +
                    '<span class="time">' + new Date(e.timestamp).toLocaleTimeString() + '</span>' +
                    e.message + '</div>'
                ).join('') || '<div class="stat-label">Quiet so far</div>';

                document.getElementById('news').innerHTML = news.map(n =>
                    '<div class="news-item"><a href="' + n.link + '" target="_blank">' + n.title + '</a>' +
                    '<div class="news-source">' + n.source + '</div></div>'
                ).join('') || '<div class="stat-label">No headlines</div>';
            } catch (err) {
                console.error('refresh failed:', err);
            }
        }

        refresh();
        setInterval(refresh, 5000);
    </script>
</body>
</html>
`
