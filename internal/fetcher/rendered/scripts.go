package rendered

// scrollScript walks down at most five viewport heights to trigger lazy loading,
// then returns to the top.
const scrollScript = `(async () => {
  const delay = ms => new Promise(r => setTimeout(r, ms));
  const step = window.innerHeight || 1080;
  const height = document.body ? document.body.scrollHeight : 0;
  const max = Math.min(height, step * 5);
  let scrolled = 0;
  while (scrolled < max) {
    window.scrollBy(0, step);
    scrolled += step;
    await delay(50);
  }
  window.scrollTo(0, 0);
  return true;
})()`

// flattenShadowScript prepends each open shadow root's markup to its host element.
const flattenShadowScript = `(() => {
  document.querySelectorAll('*').forEach(el => {
    if (el.shadowRoot) {
      el.innerHTML = el.shadowRoot.innerHTML + el.innerHTML;
    }
  });
  return document.documentElement.outerHTML;
})()`

const outerHTMLScript = `document.documentElement.outerHTML`
