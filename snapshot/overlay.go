package snapshot

import "fmt"

const statusScript = `() => {
	const OVERLAY_ID = %s;
	let root = document.getElementById(OVERLAY_ID);
	if (!root) {
		root = document.createElement('div');
		root.id = OVERLAY_ID;
		root.style.cssText = 'position:fixed;top:0;left:0;width:0;height:0;z-index:2147483647;pointer-events:none;';
		document.documentElement.appendChild(root);
	}
	let badge = root.querySelector('[data-wing-status]');
	if (!badge) {
		badge = document.createElement('div');
		badge.setAttribute('data-wing-status', '');
		badge.style.cssText = 'position:fixed;top:20px;right:20px;max-width:320px;padding:10px 14px;' +
			'background:linear-gradient(135deg,#1e293b 0%%,#334155 100%%);color:#f8fafc;' +
			'font:13px/1.4 -apple-system,BlinkMacSystemFont,sans-serif;border-radius:10px;' +
			'box-shadow:0 8px 24px rgba(15,23,42,0.35);pointer-events:none;';
		root.appendChild(badge);
	}
	badge.textContent = %s;
	return true;
}`

// StatusScript 在保留浮层里显示一行运行状态,浮层不会进入快照
func StatusScript(text string) string {
	return fmt.Sprintf(statusScript, jsString(ReservedOverlayID), jsString(text))
}
